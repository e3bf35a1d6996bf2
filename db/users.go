package db

import (
	"encoding/json"
	"fileserver/models"
	"fileserver/utils"
	"fmt"
	"log"
	"os"
	"regexp"
	"sort"
	"sync"
)

const (
	defaultAdminID       = "admin"
	defaultAdminPassword = "password"
)

var (
	userIDPattern   = regexp.MustCompile(`^[0-9A-Za-z]{1,32}$`)
	passwordPattern = regexp.MustCompile(`^[^:\r\n\t]{4,32}$`)
)

// IsValidUserID reports whether an id is 1-32 alphanumeric characters.
func IsValidUserID(id string) bool {
	return userIDPattern.MatchString(id)
}

// IsValidPassword reports whether a password is 4-32 characters and free of
// ':' and line-control characters. The colon is the Basic-auth field
// separator; CR/LF/TAB are excluded for the benefit of line-oriented tooling
// around the persisted records.
func IsValidPassword(password string) bool {
	return passwordPattern.MatchString(password)
}

// UserStore holds all user accounts and persists them as a single JSON array
// file. One mutex domain guards the in-memory map and the backing-file writes
// together, so a read-modify-write sequence can never interleave with another
// request's mutation.
type UserStore struct {
	mu         sync.RWMutex
	users      map[string]models.UserRecord
	path       string
	bcryptCost int
}

// NewUserStore loads the user database from path. If the file is absent, a
// default ADMIN account is created and persisted and a warning is logged.
// An unreadable or unparsable file is a fatal condition: the error is
// returned and the caller must not start serving.
func NewUserStore(path string, bcryptCost int) (*UserStore, error) {
	s := &UserStore{
		users:      make(map[string]models.UserRecord),
		path:       path,
		bcryptCost: bcryptCost,
	}

	log.Printf("INFO: Initializing user database with file: %s", path)
	fileData, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read user database '%s': %w", path, err)
		}
		if err := s.createDefaultAdmin(); err != nil {
			return nil, err
		}
		return s, nil
	}

	var records []models.UserRecord
	if err := json.Unmarshal(fileData, &records); err != nil {
		log.Printf("CRITICAL: Failed to parse user database '%s': %v", path, err)
		return nil, fmt.Errorf("failed to parse user database '%s': %w", path, err)
	}
	for _, rec := range records {
		s.users[rec.ID] = rec
	}
	log.Printf("INFO: Loaded %d user(s) from %s", len(s.users), path)

	return s, nil
}

// createDefaultAdmin writes the bootstrap user database. Called only when the
// backing file does not exist yet.
func (s *UserStore) createDefaultAdmin() error {
	hash, err := utils.HashPassword(defaultAdminPassword, s.bcryptCost)
	if err != nil {
		return err
	}
	s.users[defaultAdminID] = models.UserRecord{
		ID:           defaultAdminID,
		Type:         models.RoleAdmin,
		Enabled:      true,
		PasswordHash: hash,
	}
	if err := s.persistLocked(); err != nil {
		return err
	}
	log.Printf("INFO: Created default user:\n id: %s\n password: %s", defaultAdminID, defaultAdminPassword)
	log.Printf("WARN: You should change the credentials of the default user!")
	return nil
}

// persistLocked serializes the whole user set and atomically replaces the
// backing file. Callers must hold the write lock (or be the constructor).
func (s *UserStore) persistLocked() error {
	records := make([]models.UserRecord, 0, len(s.users))
	for _, rec := range s.users {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })

	jsonData, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		log.Printf("ERROR: Failed to marshal user database: %v", err)
		return err
	}

	tempPath := s.path + ".tmp"
	if err := os.WriteFile(tempPath, jsonData, 0600); err != nil {
		log.Printf("ERROR: Failed to write temporary user database file '%s': %v", tempPath, err)
		return err
	}
	if err := os.Rename(tempPath, s.path); err != nil {
		log.Printf("ERROR: Failed to rename temporary user database file '%s' to '%s': %v", tempPath, s.path, err)
		_ = os.Remove(tempPath)
		return err
	}
	return nil
}

// --- Authorization Gate ---

// RequireAdmin grants only when the requester holds the ADMIN role.
func (s *UserStore) RequireAdmin(requester string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.requireAdminLocked(requester)
}

// RequireSelfOrAdmin grants when the requester is the target or an ADMIN.
func (s *UserStore) RequireSelfOrAdmin(requester, target string) error {
	if requester == target {
		return nil
	}
	return s.RequireAdmin(requester)
}

func (s *UserStore) requireAdminLocked(requester string) error {
	rec, found := s.users[requester]
	if !found || rec.Type != models.RoleAdmin {
		return utils.Forbidden("Forbidden")
	}
	return nil
}

func (s *UserStore) requireSelfOrAdminLocked(requester, target string) error {
	if requester == target {
		return nil
	}
	return s.requireAdminLocked(requester)
}

// --- Operations ---

// Authenticate verifies a credential pair. All failure modes (unknown user,
// wrong password, invalid input shape) collapse into one Unauthorized answer
// so they cannot be told apart; only a disabled account gets its own message.
func (s *UserStore) Authenticate(id, password string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !IsValidUserID(id) || !IsValidPassword(password) {
		return models.User{}, utils.Unauthorized("Invalid Credentials")
	}
	rec, found := s.users[id]
	if !found || !utils.CheckPasswordHash(password, rec.PasswordHash) {
		return models.User{}, utils.Unauthorized("Invalid Credentials")
	}
	if !rec.Enabled {
		return models.User{}, utils.Unauthorized("User Disabled")
	}
	return rec.Public(), nil
}

// GetUser returns the public projection of a user.
func (s *UserStore) GetUser(id string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, found := s.users[id]
	if !found {
		return models.User{}, utils.NotFound("User Not Found")
	}
	return rec.Public(), nil
}

// ListUserIDs returns all user ids, sorted. Admin only.
func (s *UserStore) ListUserIDs(requester string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.requireAdminLocked(requester); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(s.users))
	for id := range s.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// ListUsers returns the public projection of every user, sorted by id.
// Admin only.
func (s *UserStore) ListUsers(requester string) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.requireAdminLocked(requester); err != nil {
		return nil, err
	}
	users := make([]models.User, 0, len(s.users))
	for _, rec := range s.users {
		users = append(users, rec.Public())
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

// CreateUser adds a new account. Admin only; the id and password must pass
// validation and the id must be unused.
func (s *UserStore) CreateUser(requester, id, password string, role models.Role, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireAdminLocked(requester); err != nil {
		return err
	}
	if !IsValidUserID(id) || !IsValidPassword(password) {
		return utils.BadRequest("Invalid User ID or Password")
	}
	if _, exists := s.users[id]; exists {
		return utils.Conflict("User Already Exist")
	}

	hash, err := utils.HashPassword(password, s.bcryptCost)
	if err != nil {
		return utils.InternalError("IO Error")
	}
	s.users[id] = models.UserRecord{ID: id, Type: role, Enabled: enabled, PasswordHash: hash}
	if err := s.persistLocked(); err != nil {
		delete(s.users, id)
		return utils.InternalError("IO Error")
	}
	log.Printf("INFO: Created user '%s' (type: %s, enabled: %t)", id, role, enabled)
	return nil
}

// UserUpdate carries the optional fields of an update operation. Nil fields
// are left untouched.
type UserUpdate struct {
	Type     *models.Role
	Password *string
	Enabled  *bool
	NewID    *string // Admin rename
}

// UpdateUser applies a multi-field update atomically: every supplied field is
// authorized and validated before any field is written, and the whole record
// set is persisted once. Type, Enabled and NewID changes require an ADMIN
// requester; a Password change requires the requester to be the target or an
// ADMIN.
func (s *UserStore) UpdateUser(requester, target string, upd UserUpdate) error {
	if upd.Type == nil && upd.Password == nil && upd.Enabled == nil && upd.NewID == nil {
		return utils.BadRequest("Missing Parameters")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, found := s.users[target]
	if !found {
		return utils.NotFound("User Not Found")
	}

	// Validate everything up front so a half-applied update is impossible.
	if upd.Type != nil || upd.Enabled != nil || upd.NewID != nil {
		if err := s.requireAdminLocked(requester); err != nil {
			return err
		}
	}
	if upd.Password != nil {
		if err := s.requireSelfOrAdminLocked(requester, target); err != nil {
			return err
		}
		if !IsValidPassword(*upd.Password) {
			return utils.BadRequest("Invalid Password")
		}
	}
	if upd.NewID != nil {
		if !IsValidUserID(*upd.NewID) {
			return utils.BadRequest("Invalid User ID")
		}
		if *upd.NewID != target {
			if _, exists := s.users[*upd.NewID]; exists {
				return utils.Conflict("User Already Exist")
			}
		}
	}

	prev := rec
	prevID := target

	if upd.Type != nil {
		rec.Type = *upd.Type
	}
	if upd.Enabled != nil {
		rec.Enabled = *upd.Enabled
	}
	if upd.Password != nil {
		// A fresh salt is drawn on every password change.
		hash, err := utils.HashPassword(*upd.Password, s.bcryptCost)
		if err != nil {
			return utils.InternalError("IO Error")
		}
		rec.PasswordHash = hash
	}
	if upd.NewID != nil {
		rec.ID = *upd.NewID
	}

	delete(s.users, prevID)
	s.users[rec.ID] = rec
	if err := s.persistLocked(); err != nil {
		delete(s.users, rec.ID)
		s.users[prevID] = prev
		return utils.InternalError("IO Error")
	}
	log.Printf("INFO: Updated user '%s'", target)
	return nil
}

// Disable deactivates an account without removing it, so the id stays
// reserved. Used for self-deactivation; only an ADMIN can re-enable the
// account afterwards.
func (s *UserStore) Disable(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, found := s.users[id]
	if !found {
		return utils.NotFound("User Not Found")
	}
	prev := rec
	rec.Enabled = false
	s.users[id] = rec
	if err := s.persistLocked(); err != nil {
		s.users[id] = prev
		return utils.InternalError("IO Error")
	}
	log.Printf("INFO: Disabled user '%s'", id)
	return nil
}

// DeleteUser removes an account. Admin only. A missing target is answered
// with a conflict, mirroring the create-side duplicate answer.
func (s *UserStore) DeleteUser(requester, target string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireAdminLocked(requester); err != nil {
		return err
	}
	rec, found := s.users[target]
	if !found {
		return utils.Conflict("User Does Not Exist")
	}

	delete(s.users, target)
	if err := s.persistLocked(); err != nil {
		s.users[target] = rec
		return utils.InternalError("IO Error")
	}
	log.Printf("INFO: Deleted user '%s'", target)
	return nil
}
