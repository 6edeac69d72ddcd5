package service

import (
	"context"
	"errors"

	"BucketDash/internal/repo"
)

// DefaultRole is assumed for actors with no profile row.
const DefaultRole = "user"

// Actor is the caller identity supplied by the session layer. The zero value is unauthenticated.
type Actor struct {
	ID string
}

func (a Actor) Authenticated() bool {
	return a.ID != ""
}

// CanDeleteFolder reports whether actor may delete a folder subtree.
func CanDeleteFolder(actor Actor, role, adminRole string) bool {
	return actor.Authenticated() && adminRole != "" && role == adminRole
}

// CanDeleteFile reports whether actor may delete an object owned by ownerID.
// Objects with no recorded owner are admin-only.
func CanDeleteFile(actor Actor, ownerID *string, role, adminRole string) bool {
	if !actor.Authenticated() {
		return false
	}
	if adminRole != "" && role == adminRole {
		return true
	}
	return ownerID != nil && *ownerID == actor.ID
}

// CanMutate reports whether actor may create folders or upload.
func CanMutate(actor Actor) bool {
	return actor.Authenticated()
}

// Authorizer resolves roles from profiles.
type Authorizer struct {
	files     repo.FileRepository
	adminRole string
}

func NewAuthorizer(files repo.FileRepository, adminRole string) *Authorizer {
	return &Authorizer{files: files, adminRole: adminRole}
}

func (z *Authorizer) AdminRole() string {
	return z.adminRole
}

// Role returns the actor's role. A missing profile yields DefaultRole.
func (z *Authorizer) Role(ctx context.Context, actor Actor) (string, error) {
	if !actor.Authenticated() {
		return "", nil
	}
	profile, err := z.files.GetProfile(ctx, actor.ID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return DefaultRole, nil
		}
		return "", err
	}
	if profile.Role == "" {
		return DefaultRole, nil
	}
	return profile.Role, nil
}

// RequireFolderDelete fails unless actor holds the admin role.
func (z *Authorizer) RequireFolderDelete(ctx context.Context, op string, actor Actor) error {
	if !actor.Authenticated() {
		return unauthenticated(op)
	}
	role, err := z.Role(ctx, actor)
	if err != nil {
		return backendError(op, err)
	}
	if !CanDeleteFolder(actor, role, z.adminRole) {
		return forbidden(op, "folder deletion requires the %s role", z.adminRole)
	}
	return nil
}
