package api

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/skillgate/skillgate/pkg/authz"
	"github.com/skillgate/skillgate/pkg/httputil"
	"github.com/skillgate/skillgate/pkg/observability"
	"github.com/skillgate/skillgate/pkg/principal"
)

// AdminHandlers handles role and instance grant management. Every route is
// guarded by the Admin role. Grants and revocations are single-row inserts
// and deletes; the database is the sole consistency mechanism, and the next
// principal load observes the change.
type AdminHandlers struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewAdminHandlers creates a new admin handlers instance
func NewAdminHandlers(db *sql.DB, logger *observability.Logger) *AdminHandlers {
	return &AdminHandlers{db: db, logger: logger}
}

// RegisterRoutes registers admin grant/revoke routes
func (h *AdminHandlers) RegisterRoutes(router *mux.Router, guard *authz.Guard) {
	admin := authz.ByRoles(principal.AdminRole)

	router.Handle("/admin/users/{id}/roles", guard.WrapFunc(admin, h.assignRole)).Methods("POST")
	router.Handle("/admin/users/{id}/roles/{role}", guard.WrapFunc(admin, h.removeRole)).Methods("DELETE")

	router.Handle("/admin/users/{id}/instances", guard.WrapFunc(admin, h.grantInstance)).Methods("POST")
	router.Handle("/admin/users/{id}/instances/{instance_id}", guard.WrapFunc(admin, h.revokeInstance)).Methods("DELETE")
}

// assignRole handles POST /admin/users/{id}/roles
func (h *AdminHandlers) assignRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		Role string `json:"role"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Role, "role") {
		return
	}

	if !h.userExists(w, r, userID) {
		return
	}

	var roleID int64
	err := h.db.QueryRowContext(r.Context(),
		`SELECT id FROM roles WHERE name = $1`, req.Role,
	).Scan(&roleID)
	if errors.Is(err, sql.ErrNoRows) {
		httputil.WriteNotFoundError(w, "role not found")
		return
	}
	if err != nil {
		h.internalError(w, err, "role lookup failed")
		return
	}

	_, err = h.db.ExecContext(r.Context(),
		`INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		userID, roleID,
	)
	if err != nil {
		h.internalError(w, err, "role assignment failed")
		return
	}

	h.logger.WithField("user_id", userID).
		WithField("role", req.Role).
		Info("role assigned")
	httputil.WriteCreated(w, map[string]string{"status": "assigned"})
}

// removeRole handles DELETE /admin/users/{id}/roles/{role}
func (h *AdminHandlers) removeRole(w http.ResponseWriter, r *http.Request) {
	vars := httputil.GetPathVars(r)
	userID := vars["id"]
	role := vars["role"]

	res, err := h.db.ExecContext(r.Context(),
		`DELETE FROM user_roles
		 WHERE user_id = $1 AND role_id = (SELECT id FROM roles WHERE name = $2)`,
		userID, role,
	)
	if err != nil {
		h.internalError(w, err, "role removal failed")
		return
	}
	n, err := res.RowsAffected()
	if err != nil {
		h.internalError(w, err, "role removal failed")
		return
	}
	if n == 0 {
		httputil.WriteNotFoundError(w, "role assignment not found")
		return
	}

	h.logger.WithField("user_id", userID).
		WithField("role", role).
		Info("role removed")
	httputil.WriteNoContent(w)
}

// grantInstance handles POST /admin/users/{id}/instances
func (h *AdminHandlers) grantInstance(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		InstanceID string `json:"instance_id"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.InstanceID, "instance_id") {
		return
	}

	if !h.userExists(w, r, userID) {
		return
	}

	var exists int
	err := h.db.QueryRowContext(r.Context(),
		`SELECT 1 FROM asset_instances WHERE id = $1`, req.InstanceID,
	).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		httputil.WriteNotFoundError(w, "asset instance not found")
		return
	}
	if err != nil {
		h.internalError(w, err, "asset instance lookup failed")
		return
	}

	_, err = h.db.ExecContext(r.Context(),
		`INSERT INTO user_asset_instances (user_id, asset_instance_id)
		 VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		userID, req.InstanceID,
	)
	if err != nil {
		h.internalError(w, err, "instance grant failed")
		return
	}

	h.logger.WithField("user_id", userID).
		WithField("instance_id", req.InstanceID).
		Info("instance access granted")
	httputil.WriteCreated(w, map[string]string{"status": "granted"})
}

// revokeInstance handles DELETE /admin/users/{id}/instances/{instance_id}
func (h *AdminHandlers) revokeInstance(w http.ResponseWriter, r *http.Request) {
	vars := httputil.GetPathVars(r)
	userID := vars["id"]
	instanceID := vars["instance_id"]

	res, err := h.db.ExecContext(r.Context(),
		`DELETE FROM user_asset_instances WHERE user_id = $1 AND asset_instance_id = $2`,
		userID, instanceID,
	)
	if err != nil {
		h.internalError(w, err, "instance revocation failed")
		return
	}
	n, err := res.RowsAffected()
	if err != nil {
		h.internalError(w, err, "instance revocation failed")
		return
	}
	if n == 0 {
		httputil.WriteNotFoundError(w, "instance grant not found")
		return
	}

	h.logger.WithField("user_id", userID).
		WithField("instance_id", instanceID).
		Info("instance access revoked")
	httputil.WriteNoContent(w)
}

func (h *AdminHandlers) userExists(w http.ResponseWriter, r *http.Request, userID string) bool {
	var exists int
	err := h.db.QueryRowContext(r.Context(),
		`SELECT 1 FROM users WHERE id = $1`, userID,
	).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		httputil.WriteNotFoundError(w, "user not found")
		return false
	}
	if err != nil {
		h.internalError(w, err, "user lookup failed")
		return false
	}
	return true
}

func (h *AdminHandlers) internalError(w http.ResponseWriter, err error, msg string) {
	h.logger.WithError(err).Error(msg)
	httputil.WriteInternalError(w, errors.New("internal server error"))
}
