package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/authcore/internal/auth/providers"
	"github.com/charlesng35/authcore/internal/database"
	"github.com/charlesng35/authcore/internal/models"
)

// LinkPolicy decides whether an OAuth login may attach a provider to an account that already
// exists for the same email.
type LinkPolicy string

const (
	// LinkPolicyFirstProviderWins links a provider only to accounts that have none yet, which are
	// accounts created through the OTP flow. An account created through one provider rejects all
	// others.
	LinkPolicyFirstProviderWins LinkPolicy = "first_provider_wins"
	// LinkPolicyLinkVerified links any provider that asserts a verified email.
	LinkPolicyLinkVerified LinkPolicy = "link_verified"
)

const resolveAttempts = 3

var (
	errLinkRefused   = errors.New("identity: link refused by policy")
	errAlreadyLinked = errors.New("identity: provider already linked")
)

// ParseLinkPolicy validates a configured policy name. An empty name selects the default.
func ParseLinkPolicy(name string) (LinkPolicy, error) {
	switch LinkPolicy(strings.ToLower(strings.TrimSpace(name))) {
	case "", LinkPolicyFirstProviderWins:
		return LinkPolicyFirstProviderWins, nil
	case LinkPolicyLinkVerified:
		return LinkPolicyLinkVerified, nil
	default:
		return "", fmt.Errorf("identity: unknown link policy %q", name)
	}
}

// ExternalIdentity is a provider-verified identity handed to ResolveOrLink.
type ExternalIdentity struct {
	Email       string
	Provider    string
	Subject     string
	DisplayName string
	AvatarURL   string
	Claims      map[string]any
}

// IdentityResolver maps authenticated identities to canonical user records.
type IdentityResolver interface {
	ResolveByEmail(ctx context.Context, email string) (*models.User, error)
	ResolveOrLink(ctx context.Context, identity ExternalIdentity) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// ResolverConfig configures DBIdentityResolver.
type ResolverConfig struct {
	Policy LinkPolicy
	Clock  func() time.Time
}

// DBIdentityResolver resolves identities against the users and linked_providers tables. Unique
// indexes on users.email and (provider, subject) arbitrate concurrent first logins; the loser of
// a race re-reads the winner's record.
type DBIdentityResolver struct {
	db     *gorm.DB
	policy LinkPolicy
	now    func() time.Time
}

// NewIdentityResolver constructs a DBIdentityResolver.
func NewIdentityResolver(db *gorm.DB, cfg ResolverConfig) (*DBIdentityResolver, error) {
	if db == nil {
		return nil, errors.New("identity: db is required")
	}
	policy, err := ParseLinkPolicy(string(cfg.Policy))
	if err != nil {
		return nil, err
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &DBIdentityResolver{db: db, policy: policy, now: now}, nil
}

// Policy returns the active link policy.
func (r *DBIdentityResolver) Policy() LinkPolicy {
	return r.policy
}

// ResolveByEmail returns the user owning email, creating it when the email is unseen.
func (r *DBIdentityResolver) ResolveByEmail(ctx context.Context, email string) (*models.User, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, ErrInvalidInput
	}

	db := r.db.WithContext(ctx)
	for attempt := 0; attempt < resolveAttempts; attempt++ {
		user, err := r.findByEmail(db, email)
		if err == nil {
			if err := r.touch(db, user); err != nil {
				return nil, err
			}
			return user, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("identity: find user: %w", err)
		}

		now := r.now()
		user = &models.User{Email: email, LastLoginAt: &now}
		err = db.Create(user).Error
		if err == nil {
			return user, nil
		}
		if !database.IsUniqueViolation(err) {
			return nil, fmt.Errorf("identity: create user: %w", err)
		}
	}
	return nil, errors.New("identity: resolve email: too much contention")
}

// ResolveOrLink maps a provider identity to a user, linking or creating as the policy allows.
// Refusals are reported as *ProviderConflictError.
func (r *DBIdentityResolver) ResolveOrLink(ctx context.Context, identity ExternalIdentity) (*models.User, error) {
	identity.Email = NormalizeEmail(identity.Email)
	identity.Provider = providers.NormaliseType(identity.Provider)
	identity.Subject = strings.TrimSpace(identity.Subject)
	if identity.Email == "" {
		return nil, ErrMissingProviderEmail
	}
	if identity.Provider == "" || identity.Subject == "" {
		return nil, ErrInvalidInput
	}

	db := r.db.WithContext(ctx)
	for attempt := 0; attempt < resolveAttempts; attempt++ {
		user, err := r.findByEmail(db, identity.Email)
		switch {
		case err == nil:
			if user.HasProvider(identity.Provider, identity.Subject) {
				return r.refresh(db, user, identity)
			}

			owner, err := r.findLinkOwner(db, identity.Provider, identity.Subject)
			if err != nil {
				return nil, err
			}
			if owner != "" || !r.mayLink(user) {
				return nil, &ProviderConflictError{
					Email:    identity.Email,
					Provider: identity.Provider,
					Existing: user.ProviderNames(),
				}
			}

			err = r.linkProvider(db, user, identity)
			switch {
			case err == nil, errors.Is(err, errAlreadyLinked):
				return r.refresh(db, user, identity)
			case errors.Is(err, errLinkRefused):
				return nil, &ProviderConflictError{
					Email:    identity.Email,
					Provider: identity.Provider,
					Existing: user.ProviderNames(),
				}
			case errors.Is(err, gorm.ErrRecordNotFound), database.IsUniqueViolation(err):
				continue
			default:
				return nil, fmt.Errorf("identity: link provider: %w", err)
			}

		case errors.Is(err, gorm.ErrRecordNotFound):
			owner, err := r.findLinkOwner(db, identity.Provider, identity.Subject)
			if err != nil {
				return nil, err
			}
			if owner != "" {
				// The provider account is already bound to a user under a different email.
				return nil, &ProviderConflictError{
					Email:    identity.Email,
					Provider: identity.Provider,
					Existing: []string{identity.Provider},
				}
			}

			user, err := r.createWithLink(db, identity)
			if err != nil {
				if database.IsUniqueViolation(err) {
					continue
				}
				return nil, fmt.Errorf("identity: create user: %w", err)
			}
			return user, nil

		default:
			return nil, fmt.Errorf("identity: find user: %w", err)
		}
	}
	return nil, fmt.Errorf("identity: resolve %s identity: too much contention", identity.Provider)
}

// FindByID loads a user and its linked providers.
func (r *DBIdentityResolver) FindByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Preload("Providers", func(tx *gorm.DB) *gorm.DB { return tx.Order("created_at ASC") }).
		Take(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("identity: find user: %w", err)
	}
	return &user, nil
}

// linkProvider attaches identity to user. The user row is written before the linked providers are
// re-read, so concurrent links to one account serialise on that row and the policy is evaluated
// against committed links only. user.Providers is replaced with the re-read set.
func (r *DBIdentityResolver) linkProvider(db *gorm.DB, user *models.User, identity ExternalIdentity) error {
	return db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.User{}).Where("id = ?", user.ID).UpdateColumn("updated_at", r.now())
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		var linked []models.LinkedProvider
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", user.ID).
			Order("created_at ASC").
			Find(&linked).Error
		if err != nil {
			return err
		}
		user.Providers = linked

		if user.HasProvider(identity.Provider, identity.Subject) {
			return errAlreadyLinked
		}
		if !r.mayLink(user) {
			return errLinkRefused
		}

		link := r.newLink(user.ID, identity)
		if err := tx.Create(&link).Error; err != nil {
			return err
		}
		user.Providers = append(user.Providers, link)
		return nil
	})
}

func (r *DBIdentityResolver) mayLink(user *models.User) bool {
	if r.policy == LinkPolicyLinkVerified {
		return true
	}
	return len(user.Providers) == 0
}

func (r *DBIdentityResolver) findByEmail(db *gorm.DB, email string) (*models.User, error) {
	var user models.User
	err := db.Preload("Providers", func(tx *gorm.DB) *gorm.DB { return tx.Order("created_at ASC") }).
		Take(&user, "email = ?", email).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *DBIdentityResolver) findLinkOwner(db *gorm.DB, provider, subject string) (string, error) {
	var link models.LinkedProvider
	err := db.Select("user_id").Where("provider = ? AND subject = ?", provider, subject).Take(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("identity: find link: %w", err)
	}
	return link.UserID, nil
}

func (r *DBIdentityResolver) newLink(userID string, identity ExternalIdentity) models.LinkedProvider {
	now := r.now()
	return models.LinkedProvider{
		UserID:      userID,
		Provider:    identity.Provider,
		Subject:     identity.Subject,
		Email:       identity.Email,
		Claims:      datatypes.JSONMap(identity.Claims),
		LastLoginAt: &now,
	}
}

func (r *DBIdentityResolver) createWithLink(db *gorm.DB, identity ExternalIdentity) (*models.User, error) {
	now := r.now()
	user := &models.User{
		Email:       identity.Email,
		DisplayName: strings.TrimSpace(identity.DisplayName),
		AvatarURL:   strings.TrimSpace(identity.AvatarURL),
		LastLoginAt: &now,
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Providers").Create(user).Error; err != nil {
			return err
		}
		link := r.newLink(user.ID, identity)
		if err := tx.Create(&link).Error; err != nil {
			return err
		}
		user.Providers = []models.LinkedProvider{link}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// refresh applies last-writer-wins profile updates. Empty incoming values keep the stored ones.
func (r *DBIdentityResolver) refresh(db *gorm.DB, user *models.User, identity ExternalIdentity) (*models.User, error) {
	now := r.now()
	updates := map[string]any{"last_login_at": now}
	if name := strings.TrimSpace(identity.DisplayName); name != "" && name != user.DisplayName {
		updates["display_name"] = name
		user.DisplayName = name
	}
	if avatar := strings.TrimSpace(identity.AvatarURL); avatar != "" && avatar != user.AvatarURL {
		updates["avatar_url"] = avatar
		user.AvatarURL = avatar
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.User{}).Where("id = ?", user.ID).Updates(updates).Error; err != nil {
			return err
		}
		linkUpdates := map[string]any{
			"last_login_at": now,
			"email":         identity.Email,
		}
		if len(identity.Claims) > 0 {
			linkUpdates["claims"] = datatypes.JSONMap(identity.Claims)
		}
		return tx.Model(&models.LinkedProvider{}).
			Where("provider = ? AND subject = ?", identity.Provider, identity.Subject).
			Updates(linkUpdates).Error
	})
	if err != nil {
		return nil, fmt.Errorf("identity: refresh profile: %w", err)
	}

	user.LastLoginAt = &now
	for i := range user.Providers {
		if user.Providers[i].Provider == identity.Provider && user.Providers[i].Subject == identity.Subject {
			user.Providers[i].LastLoginAt = &now
		}
	}
	return user, nil
}

func (r *DBIdentityResolver) touch(db *gorm.DB, user *models.User) error {
	now := r.now()
	if err := db.Model(&models.User{}).Where("id = ?", user.ID).Update("last_login_at", now).Error; err != nil {
		return fmt.Errorf("identity: touch user: %w", err)
	}
	user.LastLoginAt = &now
	return nil
}

var _ IdentityResolver = (*DBIdentityResolver)(nil)
