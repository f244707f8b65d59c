package service_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-hr-timesheets/internal/approval"
	"github.com/pesio-ai/be-hr-timesheets/internal/platform/errors"
	"github.com/pesio-ai/be-hr-timesheets/internal/repository"
	"github.com/pesio-ai/be-hr-timesheets/internal/service"
)

func TestDeleteOwnAccountIsAlwaysUnauthorized(t *testing.T) {
	f := newFixture(t)
	root := f.profile("root", repository.RoleSuperAdmin)
	admin := f.profile("admin", repository.RoleAdmin)

	for _, actor := range []*repository.Profile{root, admin} {
		err := f.users.Delete(f.ctx, actor.ID, actor.ID)
		assert.True(t, errors.Is(err, errors.ErrCodeUnauthorized), "actor %s", actor.FullName)
	}

	// Rejected even when the account id is unknown to the store.
	ghost := uuid.NewString()
	err := f.users.Delete(f.ctx, ghost, ghost)
	assert.True(t, errors.Is(err, errors.ErrCodeUnauthorized))
}

func TestDeleteUser(t *testing.T) {
	f := newFixture(t)
	admin := f.profile("admin", repository.RoleAdmin)
	mgr := f.profile("mgr", repository.RoleManager)
	emp := f.profile("emp", repository.RoleEmployee, managedBy(mgr.ID))
	f.draft(emp)

	err := f.users.Delete(f.ctx, mgr.ID, emp.ID)
	assert.True(t, errors.Is(err, errors.ErrCodeUnauthorized))

	require.NoError(t, f.users.Delete(f.ctx, admin.ID, emp.ID))
	_, err = f.users.Get(f.ctx, admin.ID, emp.ID)
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound))
}

func TestCreateUserBySupervisorIsForcedToEmployee(t *testing.T) {
	f := newFixture(t)
	sup := f.profile("sup", repository.RoleSupervisor)

	p, err := f.users.Create(f.ctx, sup.ID, &service.CreateUserRequest{
		Email:    "New.Hire@Example.com",
		FullName: "New Hire",
		Role:     string(repository.RoleManager),
	})
	require.NoError(t, err)
	assert.Equal(t, repository.RoleEmployee, p.Role)
	assert.Equal(t, "new.hire@example.com", p.Email)
	require.NotNil(t, p.ReportsToID)
	assert.Equal(t, sup.ID, *p.ReportsToID)

	_, err = f.users.Create(f.ctx, sup.ID, &service.CreateUserRequest{
		Email:           "other@example.com",
		FinalApproverID: strp(sup.ID),
	})
	assert.True(t, errors.Is(err, errors.ErrCodeUnauthorized))
}

func TestCreateUserBySupervisorStaysUnderSupervisor(t *testing.T) {
	f := newFixture(t)
	admin := f.profile("admin", repository.RoleAdmin)
	sup := f.profile("sup", repository.RoleSupervisor)
	other := f.profile("other", repository.RoleSupervisor)

	_, err := f.users.Create(f.ctx, sup.ID, &service.CreateUserRequest{
		Email:        "routed@example.com",
		SupervisorID: strp(other.ID),
		ManagerID:    strp(admin.ID),
	})
	assert.True(t, errors.Is(err, errors.ErrCodeUnauthorized))

	p, err := f.users.Create(f.ctx, sup.ID, &service.CreateUserRequest{
		Email:        "direct@example.com",
		SupervisorID: strp(sup.ID),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{sup.ID}, approval.BuildChain(p))
}

func TestCreateUserRoleRules(t *testing.T) {
	f := newFixture(t)
	root := f.profile("root", repository.RoleSuperAdmin)
	admin := f.profile("admin", repository.RoleAdmin)
	emp := f.profile("emp", repository.RoleEmployee)

	_, err := f.users.Create(f.ctx, admin.ID, &service.CreateUserRequest{Email: "a@example.com", Role: "super_admin"})
	assert.True(t, errors.Is(err, errors.ErrCodeUnauthorized))

	p, err := f.users.Create(f.ctx, root.ID, &service.CreateUserRequest{Email: "b@example.com", Role: "super_admin"})
	require.NoError(t, err)
	assert.Equal(t, repository.RoleSuperAdmin, p.Role)

	_, err = f.users.Create(f.ctx, emp.ID, &service.CreateUserRequest{Email: "c@example.com"})
	assert.True(t, errors.Is(err, errors.ErrCodeUnauthorized))

	_, err = f.users.Create(f.ctx, admin.ID, &service.CreateUserRequest{Email: "d@example.com", Role: "owner"})
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))

	_, err = f.users.Create(f.ctx, admin.ID, &service.CreateUserRequest{Email: "not-an-email"})
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))

	_, err = f.users.Create(f.ctx, admin.ID, &service.CreateUserRequest{Email: "emp@example.com"})
	assert.True(t, errors.Is(err, errors.ErrCodeConflict))
}

func TestCreateUserChainFields(t *testing.T) {
	f := newFixture(t)
	admin := f.profile("admin", repository.RoleAdmin)
	mgr := f.profile("mgr", repository.RoleManager)

	id := uuid.NewString()
	_, err := f.users.Create(f.ctx, admin.ID, &service.CreateUserRequest{
		ID: id, Email: "self@example.com", SupervisorID: strp(id),
	})
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))

	_, err = f.users.Create(f.ctx, admin.ID, &service.CreateUserRequest{
		Email: "ghost@example.com", ManagerID: strp(uuid.NewString()),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))

	p, err := f.users.Create(f.ctx, admin.ID, &service.CreateUserRequest{
		Email: "ok@example.com", ManagerID: strp(mgr.ID), SupervisorID: strp(""),
	})
	require.NoError(t, err)
	require.NotNil(t, p.ManagerID)
	assert.Equal(t, mgr.ID, *p.ManagerID)
	assert.Nil(t, p.SupervisorID)
}

func TestCreateUserWithSites(t *testing.T) {
	f := newFixture(t)
	mgr := f.profile("mgr", repository.RoleManager)
	sup := f.profile("sup", repository.RoleSupervisor)
	own := f.store.AddSite(&repository.Site{Name: "North Yard", Code: strp("NY")})
	foreign := f.store.AddSite(&repository.Site{Name: "South Yard", Code: strp("SY")})
	require.NoError(t, f.store.Sites().Assign(f.ctx, mgr.ID, own.ID))

	_, err := f.users.Create(f.ctx, mgr.ID, &service.CreateUserRequest{
		Email: "x@example.com", SiteIDs: []string{foreign.ID},
	})
	assert.True(t, errors.Is(err, errors.ErrCodeUnauthorized))

	_, err = f.users.Create(f.ctx, sup.ID, &service.CreateUserRequest{
		Email: "y@example.com", SiteIDs: []string{own.ID},
	})
	assert.True(t, errors.Is(err, errors.ErrCodeUnauthorized))

	p, err := f.users.Create(f.ctx, mgr.ID, &service.CreateUserRequest{
		Email: "z@example.com", SiteIDs: []string{own.ID},
	})
	require.NoError(t, err)
	assigned, err := f.store.Sites().ListAssigned(f.ctx, []string{p.ID})
	require.NoError(t, err)
	require.Len(t, assigned, 1)
	assert.Equal(t, own.ID, assigned[0].ID)
}

func TestUpdateUserRules(t *testing.T) {
	f := newFixture(t)
	root := f.profile("root", repository.RoleSuperAdmin)
	admin := f.profile("admin", repository.RoleAdmin)
	mgr := f.profile("mgr", repository.RoleManager)
	sup := f.profile("sup", repository.RoleSupervisor)
	emp := f.profile("emp", repository.RoleEmployee, supervisedBy(sup.ID), managedBy(mgr.ID))

	cases := []struct {
		name  string
		actor *repository.Profile
		req   *service.UpdateUserRequest
		code  errors.Code
	}{
		{"own role", admin, &service.UpdateUserRequest{ID: admin.ID, Role: strp("super_admin")}, errors.ErrCodeUnauthorized},
		{"non-admin role change", mgr, &service.UpdateUserRequest{ID: emp.ID, Role: strp("supervisor")}, errors.ErrCodeUnauthorized},
		{"grant above own rank", admin, &service.UpdateUserRequest{ID: emp.ID, Role: strp("super_admin")}, errors.ErrCodeUnauthorized},
		{"employee edits own chain", emp, &service.UpdateUserRequest{ID: emp.ID, SupervisorID: strp("")}, errors.ErrCodeUnauthorized},
		{"manager sets final approver", mgr, &service.UpdateUserRequest{ID: emp.ID, FinalApproverID: strp(mgr.ID)}, errors.ErrCodeUnauthorized},
		{"manager reroutes to another approver", mgr, &service.UpdateUserRequest{ID: emp.ID, SupervisorID: strp(admin.ID)}, errors.ErrCodeUnauthorized},
		{"self approver", admin, &service.UpdateUserRequest{ID: emp.ID, ManagerID: strp(emp.ID)}, errors.ErrCodeInvalidInput},
		{"invisible target", sup, &service.UpdateUserRequest{ID: mgr.ID, FullName: strp("x")}, errors.ErrCodeUnauthorized},
		{"admin cannot see super admin", admin, &service.UpdateUserRequest{ID: root.ID, FullName: strp("x")}, errors.ErrCodeUnauthorized},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.users.Update(f.ctx, tt.actor.ID, tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.CodeOf(err))
		})
	}

	updated, err := f.users.Update(f.ctx, admin.ID, &service.UpdateUserRequest{
		ID: emp.ID, Role: strp("supervisor"), SupervisorID: strp(""),
	})
	require.NoError(t, err)
	assert.Equal(t, repository.RoleSupervisor, updated.Role)
	assert.Nil(t, updated.SupervisorID)
	require.NotNil(t, updated.ManagerID)

	updated, err = f.users.Update(f.ctx, sup.ID, &service.UpdateUserRequest{ID: sup.ID, FullName: strp("Sam Supervisor")})
	require.NoError(t, err)
	assert.Equal(t, "Sam Supervisor", updated.FullName)
}

func TestListUsersVisibility(t *testing.T) {
	f := newFixture(t)
	root := f.profile("root", repository.RoleSuperAdmin)
	admin := f.profile("admin", repository.RoleAdmin)
	mgr := f.profile("mgr", repository.RoleManager)
	sup := f.profile("sup", repository.RoleSupervisor, managedBy(mgr.ID))
	emp := f.profile("emp", repository.RoleEmployee, supervisedBy(sup.ID), managedBy(mgr.ID))

	ids := func(actor *repository.Profile) []string {
		t.Helper()
		users, err := f.users.List(f.ctx, actor.ID)
		require.NoError(t, err)
		out := make([]string, 0, len(users))
		for _, u := range users {
			out = append(out, u.ID)
		}
		return out
	}

	assert.ElementsMatch(t, []string{sup.ID, emp.ID}, ids(sup))
	assert.ElementsMatch(t, []string{mgr.ID, sup.ID, emp.ID}, ids(mgr))
	assert.ElementsMatch(t, []string{emp.ID}, ids(emp))
	assert.ElementsMatch(t, []string{admin.ID, mgr.ID, sup.ID, emp.ID}, ids(admin))
	assert.ElementsMatch(t, []string{root.ID, admin.ID, mgr.ID, sup.ID, emp.ID}, ids(root))

	_, err := f.users.List(f.ctx, uuid.NewString())
	assert.True(t, errors.Is(err, errors.ErrCodeUnauthorized))
}
