// Package accounts implements the membership domain service: every
// multi-entity write on users, organizations and memberships goes through it
// as a single transaction, so partial writes (an organization without its
// owning membership, an organization without any active owner) are never
// observable.
package accounts

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/orgbase/orgbase/pkg/orgbase/models"
	"github.com/orgbase/orgbase/pkg/orgbase/policy"
)

// Service orchestrates user, organization and membership writes.
type Service struct {
	db *gorm.DB
}

// NewService creates a new accounts service
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Member pairs a user with their membership in one organization.
type Member struct {
	User       models.User
	Membership models.Membership
}

// MemberFields holds the optional updates for a member. Nil fields are left
// untouched; user fields and membership fields may be changed independently.
type MemberFields struct {
	FullName *string
	Email    *string
	Active   *bool
	Role     *models.Role
	IsActive *bool
}

// Stats summarizes an organization's member collection.
type Stats struct {
	TotalMembers    int64 `json:"total_members"`
	ActiveMembers   int64 `json:"active_members"`
	InactiveMembers int64 `json:"inactive_members"`
	Owners          int64 `json:"owners"`
	Managers        int64 `json:"managers"`
	Members         int64 `json:"members"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// authorize loads the acting user's active membership in the organization and
// evaluates the policy for the action. The membership lookup and the policy
// decision always run before any invariant check, so a MEMBER attempting a
// forbidden mutation gets ErrForbidden even when the mutation would also
// violate last-owner protection.
func (s *Service) authorize(db *gorm.DB, actingUserID, orgID uint, action policy.Action) (*models.Membership, error) {
	var membership models.Membership
	err := db.Where("user_id = ? AND organization_id = ? AND is_active = ?", actingUserID, orgID, true).
		First(&membership).Error
	isMember := err == nil

	decision := policy.Evaluate(isMember, membership.Role, action)
	if !decision.Allowed {
		if decision.Reason == policy.ReasonNotAMember {
			return nil, ErrNotAMember
		}
		return nil, ErrForbidden
	}
	return &membership, nil
}

// otherActiveOwnerCount counts active OWNER memberships in the organization,
// excluding the membership being mutated. Must run inside the same
// transaction as the mutation it guards.
func otherActiveOwnerCount(tx *gorm.DB, orgID, excludeMembershipID uint) (int64, error) {
	var count int64
	err := tx.Model(&models.Membership{}).
		Where("organization_id = ? AND role = ? AND is_active = ? AND id <> ?",
			orgID, models.RoleOwner, true, excludeMembershipID).
		Count(&count).Error
	return count, err
}

// RegisterUser creates a new user with no memberships and no active
// organization. The full name is split into first and last name on the first
// space.
func (s *Service) RegisterUser(email, password, fullName string) (*models.User, error) {
	email = normalizeEmail(email)

	if err := ValidatePassword(password); err != nil {
		return nil, err
	}

	var existing models.User
	if err := s.db.Where("email = ?", email).First(&existing).Error; err == nil {
		return nil, ErrDuplicateEmail
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	first, last := models.SplitFullName(fullName)
	user := models.User{
		Email:        email,
		PasswordHash: hash,
		FirstName:    first,
		LastName:     last,
		Active:       true,
	}
	if err := s.db.Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// Authenticate verifies a user's credentials and returns the user with the
// active organization preloaded. Inactive users cannot log in.
func (s *Service) Authenticate(email, password string) (*models.User, error) {
	var user models.User
	err := s.db.Preload("ActiveOrganization").
		Where("email = ?", normalizeEmail(email)).First(&user).Error
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.Active || !CheckPassword(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return &user, nil
}

// GetUser returns a user by id with the active organization preloaded.
func (s *Service) GetUser(userID uint) (*models.User, error) {
	var user models.User
	if err := s.db.Preload("ActiveOrganization").First(&user, userID).Error; err != nil {
		return nil, ErrNotFound
	}
	return &user, nil
}

// ChangePassword verifies the current password and replaces it with a new
// policy-passing one.
func (s *Service) ChangePassword(userID uint, currentPassword, newPassword string) error {
	var user models.User
	if err := s.db.First(&user, userID).Error; err != nil {
		return ErrNotFound
	}
	if !CheckPassword(currentPassword, user.PasswordHash) {
		return ErrInvalidCredentials
	}
	if err := ValidatePassword(newPassword); err != nil {
		return err
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.db.Model(&user).Update("password_hash", hash).Error
}

// CreateOrganization creates an organization together with an OWNER
// membership for the acting user in one transaction. The new organization
// becomes the user's active organization only when they have none yet.
func (s *Service) CreateOrganization(actingUserID uint, name, contactEmail, taxID string) (*models.Organization, *models.Membership, error) {
	var user models.User
	if err := s.db.First(&user, actingUserID).Error; err != nil {
		return nil, nil, ErrNotFound
	}

	var org models.Organization
	var membership models.Membership
	err := s.db.Transaction(func(tx *gorm.DB) error {
		org = models.Organization{
			Name:         strings.TrimSpace(name),
			ContactEmail: normalizeEmail(contactEmail),
			TaxID:        strings.TrimSpace(taxID),
			Active:       true,
		}
		if err := tx.Create(&org).Error; err != nil {
			return err
		}

		membership = models.Membership{
			OrganizationID: org.ID,
			UserID:         user.ID,
			Role:           models.RoleOwner,
			IsActive:       true,
		}
		if err := tx.Create(&membership).Error; err != nil {
			return err
		}

		if user.ActiveOrganizationID == nil {
			return tx.Model(&user).Update("active_organization_id", org.ID).Error
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &org, &membership, nil
}

// ListOrganizations returns every organization the user belongs to, with
// their role and the member count, ordered by membership creation.
func (s *Service) ListOrganizations(userID uint) ([]OrganizationSummary, error) {
	var memberships []models.Membership
	err := s.db.Preload("Organization").
		Where("user_id = ?", userID).
		Order("created_at, id").
		Find(&memberships).Error
	if err != nil {
		return nil, err
	}

	summaries := make([]OrganizationSummary, len(memberships))
	for i, m := range memberships {
		var memberCount int64
		if err := s.db.Model(&models.Membership{}).
			Where("organization_id = ?", m.OrganizationID).
			Count(&memberCount).Error; err != nil {
			return nil, err
		}
		summaries[i] = OrganizationSummary{
			Organization: m.Organization,
			Role:         m.Role,
			IsActive:     m.IsActive,
			MemberCount:  memberCount,
		}
	}
	return summaries, nil
}

// OrganizationSummary describes one organization from a member's point of view.
type OrganizationSummary struct {
	Organization models.Organization
	Role         models.Role
	IsActive     bool
	MemberCount  int64
}

// SetActiveOrganization repoints the user's active organization. The user
// must hold an active membership in the target organization.
func (s *Service) SetActiveOrganization(userID, orgID uint) (*models.User, error) {
	var membership models.Membership
	err := s.db.Where("user_id = ? AND organization_id = ? AND is_active = ?", userID, orgID, true).
		First(&membership).Error
	if err != nil {
		return nil, ErrNotAMember
	}

	var user models.User
	if err := s.db.First(&user, userID).Error; err != nil {
		return nil, ErrNotFound
	}
	if err := s.db.Model(&user).Update("active_organization_id", orgID).Error; err != nil {
		return nil, err
	}
	return s.GetUser(userID)
}

// AddMember adds a user to the organization with the requested role. If no
// user with the email exists, one is registered; otherwise the existing user
// is attached. The organization becomes the member's active organization only
// when they have none yet. The acting user must be an OWNER or MANAGER.
func (s *Service) AddMember(actingUserID, orgID uint, email, fullName, password string, role models.Role) (*Member, error) {
	if role == "" {
		role = models.RoleMember
	}
	if !role.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	if _, err := s.authorize(s.db, actingUserID, orgID, policy.ActionAdd); err != nil {
		return nil, err
	}

	email = normalizeEmail(email)
	var member Member
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var user models.User
		err := tx.Where("email = ?", email).First(&user).Error
		switch {
		case err == nil:
			// Attach the pre-existing user.
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := ValidatePassword(password); err != nil {
				return err
			}
			hash, err := HashPassword(password)
			if err != nil {
				return err
			}
			first, last := models.SplitFullName(fullName)
			user = models.User{
				Email:        email,
				PasswordHash: hash,
				FirstName:    first,
				LastName:     last,
				Active:       true,
			}
			if err := tx.Create(&user).Error; err != nil {
				return err
			}
		default:
			return err
		}

		var existing models.Membership
		if err := tx.Where("organization_id = ? AND user_id = ?", orgID, user.ID).
			First(&existing).Error; err == nil {
			return ErrAlreadyMember
		}

		membership := models.Membership{
			OrganizationID: orgID,
			UserID:         user.ID,
			Role:           role,
			IsActive:       true,
		}
		if err := tx.Create(&membership).Error; err != nil {
			return err
		}

		if user.ActiveOrganizationID == nil {
			if err := tx.Model(&user).Update("active_organization_id", orgID).Error; err != nil {
				return err
			}
		}

		member = Member{User: user, Membership: membership}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &member, nil
}

// UpdateMember updates a member's user fields and/or membership fields. A
// change that would leave the organization without any active OWNER fails
// with ErrLastOwnerProtection; the owner count is re-read inside the same
// transaction as the write.
func (s *Service) UpdateMember(actingUserID, orgID, targetUserID uint, fields MemberFields) (*Member, error) {
	if fields.Role != nil && !fields.Role.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, *fields.Role)
	}

	if _, err := s.authorize(s.db, actingUserID, orgID, policy.ActionUpdate); err != nil {
		return nil, err
	}

	var member Member
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, targetUserID).Error; err != nil {
			return ErrNotFound
		}
		var membership models.Membership
		if err := tx.Where("organization_id = ? AND user_id = ?", orgID, targetUserID).
			First(&membership).Error; err != nil {
			return ErrNotFound
		}

		// Last-owner protection: an active OWNER may only be demoted or
		// deactivated while another active OWNER remains.
		newRole := membership.Role
		if fields.Role != nil {
			newRole = *fields.Role
		}
		newActive := membership.IsActive
		if fields.IsActive != nil {
			newActive = *fields.IsActive
		}
		losesOwner := membership.Role == models.RoleOwner && membership.IsActive &&
			!(newRole == models.RoleOwner && newActive)
		if losesOwner {
			count, err := otherActiveOwnerCount(tx, orgID, membership.ID)
			if err != nil {
				return err
			}
			if count == 0 {
				return ErrLastOwnerProtection
			}
		}

		if fields.FullName != nil {
			user.FirstName, user.LastName = models.SplitFullName(*fields.FullName)
		}
		if fields.Email != nil {
			email := normalizeEmail(*fields.Email)
			if email != user.Email {
				var other models.User
				if err := tx.Where("email = ? AND id <> ?", email, user.ID).
					First(&other).Error; err == nil {
					return ErrDuplicateEmail
				}
				user.Email = email
			}
		}
		if fields.Active != nil {
			user.Active = *fields.Active
		}
		if err := tx.Save(&user).Error; err != nil {
			return err
		}

		membership.Role = newRole
		membership.IsActive = newActive
		if err := tx.Save(&membership).Error; err != nil {
			return err
		}

		member = Member{User: user, Membership: membership}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &member, nil
}

// RemoveMember deletes the target's membership in the organization. The sole
// active OWNER cannot be removed. The user record itself is untouched, except
// that an active-organization pointer at this organization is cleared.
func (s *Service) RemoveMember(actingUserID, orgID, targetUserID uint) error {
	if _, err := s.authorize(s.db, actingUserID, orgID, policy.ActionRemove); err != nil {
		return err
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		var membership models.Membership
		if err := tx.Where("organization_id = ? AND user_id = ?", orgID, targetUserID).
			First(&membership).Error; err != nil {
			return ErrNotFound
		}

		if membership.Role == models.RoleOwner && membership.IsActive {
			count, err := otherActiveOwnerCount(tx, orgID, membership.ID)
			if err != nil {
				return err
			}
			if count == 0 {
				return ErrLastOwnerProtection
			}
		}

		// Hard delete: a soft-deleted row would keep occupying the unique
		// (organization, user) index and block re-adding the member later.
		if err := tx.Unscoped().Delete(&membership).Error; err != nil {
			return err
		}

		var user models.User
		if err := tx.First(&user, targetUserID).Error; err != nil {
			return err
		}
		if user.ActiveOrganizationID != nil && *user.ActiveOrganizationID == orgID {
			return tx.Model(&user).Update("active_organization_id", nil).Error
		}
		return nil
	})
}

// ListMembers returns all members of the organization in membership creation
// order. Any member of the organization may list, regardless of role.
func (s *Service) ListMembers(actingUserID, orgID uint) ([]Member, error) {
	if _, err := s.authorize(s.db, actingUserID, orgID, policy.ActionList); err != nil {
		return nil, err
	}

	var memberships []models.Membership
	err := s.db.Preload("User").
		Where("organization_id = ?", orgID).
		Order("created_at, id").
		Find(&memberships).Error
	if err != nil {
		return nil, err
	}

	members := make([]Member, len(memberships))
	for i, m := range memberships {
		members[i] = Member{User: m.User, Membership: m}
	}
	return members, nil
}

// GetMember returns a single member of the organization.
func (s *Service) GetMember(actingUserID, orgID, targetUserID uint) (*Member, error) {
	if _, err := s.authorize(s.db, actingUserID, orgID, policy.ActionList); err != nil {
		return nil, err
	}

	var membership models.Membership
	err := s.db.Preload("User").
		Where("organization_id = ? AND user_id = ?", orgID, targetUserID).
		First(&membership).Error
	if err != nil {
		return nil, ErrNotFound
	}
	return &Member{User: membership.User, Membership: membership}, nil
}

// MemberStats returns aggregate counts for the organization's members.
func (s *Service) MemberStats(actingUserID, orgID uint) (*Stats, error) {
	if _, err := s.authorize(s.db, actingUserID, orgID, policy.ActionList); err != nil {
		return nil, err
	}

	stats := &Stats{}
	counts := []struct {
		dest  *int64
		query string
		args  []interface{}
	}{
		{&stats.TotalMembers, "organization_id = ?", []interface{}{orgID}},
		{&stats.ActiveMembers, "organization_id = ? AND is_active = ?", []interface{}{orgID, true}},
		{&stats.InactiveMembers, "organization_id = ? AND is_active = ?", []interface{}{orgID, false}},
		{&stats.Owners, "organization_id = ? AND role = ?", []interface{}{orgID, models.RoleOwner}},
		{&stats.Managers, "organization_id = ? AND role = ?", []interface{}{orgID, models.RoleManager}},
		{&stats.Members, "organization_id = ? AND role = ?", []interface{}{orgID, models.RoleMember}},
	}
	for _, c := range counts {
		if err := s.db.Model(&models.Membership{}).
			Where(c.query, c.args...).
			Count(c.dest).Error; err != nil {
			return nil, err
		}
	}
	return stats, nil
}
