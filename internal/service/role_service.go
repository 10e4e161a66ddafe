package service

import (
	"context"
	"fmt"
	"sort"

	"gestoria/internal/model"
	"gestoria/internal/repository"
)

// --- DTOs ---

type CreateRoleRequest struct {
	Name        string   `json:"name" binding:"required,min=2,max=50"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"` // permission codes
}

type UpdateRoleRequest struct {
	Name        string `json:"name" binding:"required,min=2,max=50"`
	Description string `json:"description"`
}

type UpdateRolePermissionsRequest struct {
	Permissions []string `json:"permissions" binding:"required"`
}

type RoleResponse struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Description string               `json:"description"`
	IsSystem    bool                 `json:"is_system"`
	Permissions []PermissionResponse `json:"permissions"`
	CreatedAt   string               `json:"created_at"`
}

type PermissionResponse struct {
	ID    string `json:"id"`
	Code  string `json:"code"`
	Name  string `json:"name"`
	Group string `json:"group"`
}

// --- Interface ---

type RoleService interface {
	ListRoles(ctx context.Context) ([]RoleResponse, error)
	GetRole(ctx context.Context, id string) (*RoleResponse, error)
	CreateRole(ctx context.Context, req CreateRoleRequest) (*RoleResponse, error)
	UpdateRole(ctx context.Context, id string, req UpdateRoleRequest) (*RoleResponse, error)
	DeleteRole(ctx context.Context, id string) error
	ListPermissions(ctx context.Context) ([]PermissionResponse, error)
	UpdateRolePermissions(ctx context.Context, roleID string, req UpdateRolePermissionsRequest) (*RoleResponse, error)
	GetPermissionsByRoleName(ctx context.Context, roleName string) ([]string, error)
	SeedDefaultRolesAndPermissions(ctx context.Context) error
}

type roleService struct {
	repo      repository.RoleRepository
	users     repository.UserRepository
	txManager repository.TransactionManager
	// onChange is called with the role name whenever its permissions may have changed.
	onChange func(roleName string)
}

func NewRoleService(repo repository.RoleRepository, users repository.UserRepository, txManager repository.TransactionManager, onChange func(string)) RoleService {
	if onChange == nil {
		onChange = func(string) {}
	}
	return &roleService{repo: repo, users: users, txManager: txManager, onChange: onChange}
}

// DefaultPermissions is every permission code known to the back office.
var DefaultPermissions = []model.Permission{
	{Code: "dashboard.read", Name: "Ver panel y estadísticas", Group: "dashboard"},
	{Code: "users.read", Name: "Ver usuarios", Group: "users"},
	{Code: "users.write", Name: "Gestionar usuarios", Group: "users"},
	{Code: "users.delete", Name: "Eliminar usuarios", Group: "users"},
	{Code: "roles.manage", Name: "Gestionar roles y permisos", Group: "roles"},
	{Code: "audit.read", Name: "Ver historial de actividad", Group: "audit"},
	{Code: "clients.read", Name: "Ver clientes", Group: "clients"},
	{Code: "clients.write", Name: "Gestionar clientes", Group: "clients"},
	{Code: "clients.delete", Name: "Eliminar clientes", Group: "clients"},
	{Code: "tax.read", Name: "Ver modelos, calendario y periodos", Group: "tax"},
	{Code: "tax.write", Name: "Gestionar modelos, calendario y periodos", Group: "tax"},
	{Code: "obligations.read", Name: "Ver obligaciones fiscales", Group: "obligations"},
	{Code: "obligations.write", Name: "Gestionar obligaciones fiscales", Group: "obligations"},
	{Code: "budgets.read", Name: "Ver presupuestos", Group: "budgets"},
	{Code: "budgets.write", Name: "Gestionar presupuestos", Group: "budgets"},
	{Code: "budgets.delete", Name: "Eliminar presupuestos", Group: "budgets"},
	{Code: "budget_config.manage", Name: "Configurar tarifas de presupuestos", Group: "budgets"},
	{Code: "catalog.read", Name: "Ver catálogo de precios", Group: "catalog"},
	{Code: "catalog.write", Name: "Gestionar catálogo de precios", Group: "catalog"},
	{Code: "templates.read", Name: "Ver plantillas", Group: "templates"},
	{Code: "templates.write", Name: "Gestionar plantillas", Group: "templates"},
	{Code: "system.migrate", Name: "Ejecutar migraciones", Group: "system"},
}

type roleDefinition struct {
	Description string
	PermCodes   []string
}

// defaultRoles maps each system role to its permission codes. admin gets every code.
var defaultRoles = map[string]roleDefinition{
	model.RoleAdmin: {Description: "Administrador: acceso completo"},
	model.RoleAdvisor: {
		Description: "Asesor: clientes, obligaciones y presupuestos",
		PermCodes: []string{
			"dashboard.read", "audit.read",
			"clients.read", "clients.write", "clients.delete",
			"tax.read", "tax.write",
			"obligations.read", "obligations.write",
			"budgets.read", "budgets.write", "budgets.delete",
			"catalog.read",
			"templates.read", "templates.write",
		},
	},
	model.RoleStaff: {
		Description: "Administrativo: operativa diaria",
		PermCodes: []string{
			"dashboard.read",
			"clients.read", "clients.write",
			"tax.read",
			"obligations.read", "obligations.write",
			"budgets.read",
			"catalog.read",
			"templates.read",
		},
	},
}

// --- Implementation ---

func (s *roleService) ListRoles(ctx context.Context) ([]RoleResponse, error) {
	roles, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch roles: %w", err)
	}

	res := make([]RoleResponse, 0, len(roles))
	for _, r := range roles {
		res = append(res, toRoleResponse(r))
	}
	return res, nil
}

func (s *roleService) GetRole(ctx context.Context, id string) (*RoleResponse, error) {
	roleID, err := parseID(id, "role")
	if err != nil {
		return nil, err
	}
	role, err := s.repo.FindByID(ctx, roleID)
	if err != nil {
		return nil, lookupErr(err, "role")
	}
	resp := toRoleResponse(*role)
	return &resp, nil
}

func (s *roleService) CreateRole(ctx context.Context, req CreateRoleRequest) (*RoleResponse, error) {
	if _, err := s.repo.FindByName(ctx, req.Name); err == nil {
		return nil, conflictf("role %q already exists", req.Name)
	}
	if err := s.checkCodes(ctx, req.Permissions); err != nil {
		return nil, err
	}

	role := model.Role{Name: req.Name, Description: req.Description}
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.Create(txCtx, &role); err != nil {
			return fmt.Errorf("failed to create role: %w", err)
		}
		if len(req.Permissions) > 0 {
			if err := s.repo.ReplacePermissions(txCtx, role.ID, req.Permissions); err != nil {
				return fmt.Errorf("failed to assign permissions: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.GetRole(ctx, role.ID.String())
}

// checkCodes rejects unknown permission codes.
func (s *roleService) checkCodes(ctx context.Context, codes []string) error {
	if len(codes) == 0 {
		return nil
	}
	perms, err := s.repo.FindPermissionsByCodes(ctx, codes)
	if err != nil {
		return fmt.Errorf("failed to fetch permissions: %w", err)
	}
	known := make(map[string]bool, len(perms))
	for _, p := range perms {
		known[p.Code] = true
	}
	for _, c := range codes {
		if !known[c] {
			return invalidf("unknown permission %q", c)
		}
	}
	return nil
}

func (s *roleService) UpdateRole(ctx context.Context, id string, req UpdateRoleRequest) (*RoleResponse, error) {
	roleID, err := parseID(id, "role")
	if err != nil {
		return nil, err
	}
	role, err := s.repo.FindByID(ctx, roleID)
	if err != nil {
		return nil, lookupErr(err, "role")
	}
	if role.IsSystem && req.Name != role.Name {
		return nil, forbidden("SYSTEM_ROLE", "system roles cannot be renamed")
	}
	if req.Name != role.Name {
		if _, err := s.repo.FindByName(ctx, req.Name); err == nil {
			return nil, conflictf("role %q already exists", req.Name)
		}
	}

	role.Name = req.Name
	role.Description = req.Description
	if err := s.repo.Update(ctx, role); err != nil {
		return nil, fmt.Errorf("failed to update role: %w", err)
	}
	return s.GetRole(ctx, id)
}

func (s *roleService) DeleteRole(ctx context.Context, id string) error {
	roleID, err := parseID(id, "role")
	if err != nil {
		return err
	}
	role, err := s.repo.FindByID(ctx, roleID)
	if err != nil {
		return lookupErr(err, "role")
	}
	if role.IsSystem {
		return forbidden("SYSTEM_ROLE", fmt.Sprintf("cannot delete system role '%s'", role.Name))
	}
	n, err := s.users.CountByRole(ctx, role.Name)
	if err != nil {
		return fmt.Errorf("failed to count users: %w", err)
	}
	if n > 0 {
		return conflictf("role '%s' is assigned to %d users", role.Name, n)
	}

	if err := s.repo.Delete(ctx, roleID); err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}
	s.onChange(role.Name)
	return nil
}

func (s *roleService) ListPermissions(ctx context.Context) ([]PermissionResponse, error) {
	perms, err := s.repo.ListPermissions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch permissions: %w", err)
	}

	res := make([]PermissionResponse, 0, len(perms))
	for _, p := range perms {
		res = append(res, toPermissionResponse(p))
	}
	return res, nil
}

func (s *roleService) UpdateRolePermissions(ctx context.Context, roleID string, req UpdateRolePermissionsRequest) (*RoleResponse, error) {
	id, err := parseID(roleID, "role")
	if err != nil {
		return nil, err
	}
	role, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "role")
	}
	if role.Name == model.RoleAdmin {
		return nil, forbidden("SYSTEM_ROLE", "admin permissions cannot be changed")
	}
	if err := s.checkCodes(ctx, req.Permissions); err != nil {
		return nil, err
	}

	if err := s.repo.ReplacePermissions(ctx, id, req.Permissions); err != nil {
		return nil, fmt.Errorf("failed to update permissions: %w", err)
	}
	s.onChange(role.Name)
	return s.GetRole(ctx, roleID)
}

func (s *roleService) GetPermissionsByRoleName(ctx context.Context, roleName string) ([]string, error) {
	codes, err := s.repo.GetPermissionsByRoleName(ctx, roleName)
	if err != nil {
		return nil, lookupErr(err, "role")
	}
	sort.Strings(codes)
	return codes, nil
}

// SeedDefaultRolesAndPermissions creates the default permissions and roles if not already present.
// System role permissions are reset to their defaults on every run.
func (s *roleService) SeedDefaultRolesAndPermissions(ctx context.Context) error {
	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		all := make([]string, 0, len(DefaultPermissions))
		for i := range DefaultPermissions {
			p := DefaultPermissions[i]
			if err := s.repo.FindOrCreatePermission(txCtx, &p); err != nil {
				return fmt.Errorf("failed to seed permission '%s': %w", p.Code, err)
			}
			all = append(all, p.Code)
		}

		names := make([]string, 0, len(defaultRoles))
		for name := range defaultRoles {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			def := defaultRoles[name]
			role, err := s.repo.FindByName(txCtx, name)
			if err != nil {
				if !repository.IsNotFound(err) {
					return fmt.Errorf("failed to fetch role '%s': %w", name, err)
				}
				role = &model.Role{Name: name, Description: def.Description, IsSystem: true}
				if err := s.repo.Create(txCtx, role); err != nil {
					return fmt.Errorf("failed to seed role '%s': %w", name, err)
				}
			}

			codes := def.PermCodes
			if name == model.RoleAdmin {
				codes = all
			}
			if err := s.repo.ReplacePermissions(txCtx, role.ID, codes); err != nil {
				return fmt.Errorf("failed to assign permissions to role '%s': %w", name, err)
			}
			s.onChange(name)
		}
		return nil
	})
}

// --- Helpers ---

func toRoleResponse(r model.Role) RoleResponse {
	perms := make([]PermissionResponse, 0, len(r.Permissions))
	for _, p := range r.Permissions {
		perms = append(perms, toPermissionResponse(p))
	}

	return RoleResponse{
		ID:          r.ID.String(),
		Name:        r.Name,
		Description: r.Description,
		IsSystem:    r.IsSystem,
		Permissions: perms,
		CreatedAt:   r.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}

func toPermissionResponse(p model.Permission) PermissionResponse {
	return PermissionResponse{
		ID:    p.ID.String(),
		Code:  p.Code,
		Name:  p.Name,
		Group: p.Group,
	}
}
