package approval_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pesio-ai/be-hr-timesheets/internal/approval"
	"github.com/pesio-ai/be-hr-timesheets/internal/repository"
)

func ref(s string) *string { return &s }

func TestBuildChain(t *testing.T) {
	cases := []struct {
		name    string
		profile *repository.Profile
		want    []string
	}{
		{
			name:    "empty",
			profile: &repository.Profile{ID: "u"},
			want:    []string{},
		},
		{
			name:    "supervisor manager final",
			profile: &repository.Profile{ID: "u", SupervisorID: ref("s"), ManagerID: ref("m"), FinalApproverID: ref("f")},
			want:    []string{"s", "m", "f"},
		},
		{
			name:    "reports to used without supervisor",
			profile: &repository.Profile{ID: "u", ReportsToID: ref("r"), ManagerID: ref("m")},
			want:    []string{"r", "m"},
		},
		{
			name:    "supervisor wins over reports to",
			profile: &repository.Profile{ID: "u", ReportsToID: ref("r"), SupervisorID: ref("s")},
			want:    []string{"s"},
		},
		{
			name:    "manager only",
			profile: &repository.Profile{ID: "u", ManagerID: ref("m")},
			want:    []string{"m"},
		},
		{
			name:    "one person in two roles appears once",
			profile: &repository.Profile{ID: "u", SupervisorID: ref("m"), ManagerID: ref("m"), FinalApproverID: ref("f")},
			want:    []string{"m", "f"},
		},
		{
			name:    "self references ignored",
			profile: &repository.Profile{ID: "u", SupervisorID: ref("u"), ManagerID: ref("m"), FinalApproverID: ref("u")},
			want:    []string{"m"},
		},
		{
			name:    "blank ids ignored",
			profile: &repository.Profile{ID: "u", SupervisorID: ref(""), ReportsToID: ref("r")},
			want:    []string{"r"},
		},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, approval.BuildChain(tt.profile))
		})
	}
}

func TestBuildChainNilProfile(t *testing.T) {
	assert.Empty(t, approval.BuildChain(nil))
}

func TestNextApprover(t *testing.T) {
	chain := []string{"s", "m", "f"}

	next, ok := approval.NextApprover(chain, map[string]bool{})
	assert.True(t, ok)
	assert.Equal(t, "s", next)

	next, ok = approval.NextApprover(chain, map[string]bool{"s": true})
	assert.True(t, ok)
	assert.Equal(t, "m", next)

	_, ok = approval.NextApprover(chain, map[string]bool{"s": true, "m": true, "f": true})
	assert.False(t, ok)
	assert.True(t, approval.Complete(chain, map[string]bool{"s": true, "m": true, "f": true}))

	_, ok = approval.NextApprover(nil, nil)
	assert.False(t, ok)
}

func TestSignerRole(t *testing.T) {
	owner := &repository.Profile{ID: "u", SupervisorID: ref("s"), ManagerID: ref("m"), FinalApproverID: ref("f")}
	chain := approval.BuildChain(owner)

	assert.Equal(t, repository.SignerSupervisor, approval.SignerRole(owner, chain, "s", true))
	assert.Equal(t, repository.SignerManager, approval.SignerRole(owner, chain, "m", true))
	assert.Equal(t, repository.SignerFinalApprover, approval.SignerRole(owner, chain, "f", true))
	assert.Equal(t, repository.SignerFinalApprover, approval.SignerRole(owner, chain, "admin", false))

	managerOnly := &repository.Profile{ID: "u", ManagerID: ref("m")}
	assert.Equal(t, repository.SignerFinalApprover,
		approval.SignerRole(managerOnly, approval.BuildChain(managerOnly), "m", true))
}
