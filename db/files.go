package db

import (
	"encoding/json"
	"fileserver/models"
	"fileserver/utils"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

const fileExtension = "db"

// Database entries are named <owner>.<epoch-millis>.<ext>. The startup scan
// only admits names matching this exactly; anything else in the directory is
// ignored.
var fileNamePattern = regexp.MustCompile(`^([0-9A-Za-z]{1,32})\.([0-9]{13})\.` + fileExtension + `$`)

// FileStore persists one physical file per stored record and keeps a derived
// in-memory index of owner -> file ids. The filesystem is authoritative; the
// index is built once at startup and maintained only by in-process mutations,
// so concurrent external edits to the directory are unsupported. A secondary
// share index (user -> id -> owner) backs delegated reads.
type FileStore struct {
	mu     sync.RWMutex
	dir    string
	users  *UserStore
	index  map[string][]int64
	shared map[string]map[int64]string
}

// NewFileStore opens (creating if needed) the storage directory and builds
// the index by scanning it. Scan failures are fatal: the caller must not
// start serving with a partially built index.
func NewFileStore(dir string, users *UserStore) (*FileStore, error) {
	info, err := os.Stat(dir)
	switch {
	case err == nil && !info.IsDir():
		return nil, fmt.Errorf("file database path '%s' is not a directory", dir)
	case os.IsNotExist(err):
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create file database directory '%s': %w", dir, err)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to stat file database directory '%s': %w", dir, err)
	}

	s := &FileStore{
		dir:    dir,
		users:  users,
		index:  make(map[string][]int64),
		shared: make(map[string]map[int64]string),
	}

	log.Printf("INFO: Initializing file database in directory: %s", dir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan file database directory '%s': %w", dir, err)
	}
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		m := fileNamePattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		owner := m[1]
		id, err := strconv.ParseInt(m[2], 10, 64)
		if err != nil {
			continue
		}
		s.index[owner] = append(s.index[owner], id)

		meta, err := s.readMeta(owner, id)
		if err != nil {
			log.Printf("WARN: Skipping share entries of '%s': %v", entry.Name(), err)
			continue
		}
		for _, sharer := range meta.SharedUsers {
			s.addSharedLocked(sharer, id, owner)
		}
	}
	total := 0
	for owner := range s.index {
		sort.Slice(s.index[owner], func(i, j int) bool { return s.index[owner][i] < s.index[owner][j] })
		total += len(s.index[owner])
	}
	log.Printf("INFO: Indexed %d file(s) for %d owner(s)", total, len(s.index))

	return s, nil
}

func (s *FileStore) filePath(owner string, id int64) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s.%d.%s", owner, id, fileExtension))
}

// readMeta parses the first line of an entry: "<modified>;<comma-joined users>".
func (s *FileStore) readMeta(owner string, id int64) (models.FileMetadata, error) {
	data, err := os.ReadFile(s.filePath(owner, id))
	if err != nil {
		return models.FileMetadata{}, err
	}
	line, _, _ := strings.Cut(string(data), "\n")
	modifiedStr, usersStr, _ := strings.Cut(line, ";")
	modified, err := strconv.ParseInt(modifiedStr, 10, 64)
	if err != nil {
		return models.FileMetadata{}, fmt.Errorf("malformed metadata line in '%s'", s.filePath(owner, id))
	}
	sharedUsers := []string{}
	if usersStr != "" {
		sharedUsers = strings.Split(usersStr, ",")
	}
	return models.FileMetadata{Owner: owner, Created: id, Modified: modified, SharedUsers: sharedUsers}, nil
}

// writeEntry writes metadata line plus content atomically (write a fresh
// temporary file, then rename over the destination).
func (s *FileStore) writeEntry(owner string, id, modified int64, sharedUsers []string, content []byte) error {
	payload := fmt.Sprintf("%d;%s\n%s", modified, strings.Join(sharedUsers, ","), content)
	path := s.filePath(owner, id)
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, []byte(payload), 0600); err != nil {
		log.Printf("ERROR: Failed to write temporary file '%s': %v", tempPath, err)
		return err
	}
	if err := os.Rename(tempPath, path); err != nil {
		log.Printf("ERROR: Failed to rename temporary file '%s' to '%s': %v", tempPath, path, err)
		_ = os.Remove(tempPath)
		return err
	}
	return nil
}

func (s *FileStore) containsLocked(owner string, id int64) bool {
	for _, existing := range s.index[owner] {
		if existing == id {
			return true
		}
	}
	return false
}

func (s *FileStore) addSharedLocked(user string, id int64, owner string) {
	if s.shared[user] == nil {
		s.shared[user] = make(map[int64]string)
	}
	s.shared[user][id] = owner
}

func (s *FileStore) removeSharedLocked(user string, id int64) {
	if m, ok := s.shared[user]; ok {
		delete(m, id)
		if len(m) == 0 {
			delete(s.shared, user)
		}
	}
}

// resolveOwnerLocked maps a requester-visible id onto its owning namespace.
// Ownership and existence are the same test: an id absent from both the
// requester's index entries and the share index is indistinguishable from a
// file that does not exist.
func (s *FileStore) resolveOwnerLocked(user string, id int64) (string, error) {
	if s.containsLocked(user, id) {
		return user, nil
	}
	if owner, ok := s.shared[user][id]; ok {
		return owner, nil
	}
	return "", utils.NotFound("File Not Found Or Access Denied")
}

// --- Operations ---

// List returns the ids of targetOwner's files, sorted ascending. The
// requester must be the target owner or an ADMIN. An owner without files
// yields an empty slice, not an error. A non-nil condition restricts the
// result to files whose content matches it.
func (s *FileStore) List(requester, targetOwner string, cond *ContentCondition) ([]int64, error) {
	if !IsValidUserID(targetOwner) {
		return nil, utils.BadRequest("Invalid User ID")
	}
	if err := s.users.RequireSelfOrAdmin(requester, targetOwner); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]int64, 0, len(s.index[targetOwner]))
	for _, id := range s.index[targetOwner] {
		if cond != nil {
			match, err := s.matchesLocked(targetOwner, id, cond)
			if err != nil {
				return nil, err
			}
			if !match {
				continue
			}
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ListSharedWith returns the ids of files other owners have shared with the
// requester, sorted ascending.
func (s *FileStore) ListSharedWith(requester string) []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]int64, 0, len(s.shared[requester]))
	for id := range s.shared[requester] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// matchesLocked evaluates a content condition against one stored file.
func (s *FileStore) matchesLocked(owner string, id int64, cond *ContentCondition) (bool, error) {
	data, err := os.ReadFile(s.filePath(owner, id))
	if err != nil {
		log.Printf("ERROR: Failed to read file '%s': %v", s.filePath(owner, id), err)
		return false, utils.InternalError("Server Is In An Illegal IO State")
	}
	_, content, _ := strings.Cut(string(data), "\n")
	return cond.Matches(content), nil
}

// Get returns the metadata view or the full content of a file. The requester
// must own the file or have it shared with them.
func (s *FileStore) Get(user string, id int64, metadataOnly bool) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	owner, err := s.resolveOwnerLocked(user, id)
	if err != nil {
		return nil, err
	}

	if metadataOnly {
		meta, err := s.readMeta(owner, id)
		if err != nil {
			log.Printf("ERROR: Error while reading file: %v", err)
			return nil, utils.InternalError("Server Is In An Illegal IO State")
		}
		return meta, nil
	}

	data, err := os.ReadFile(s.filePath(owner, id))
	if err != nil {
		log.Printf("ERROR: Error while reading file: %v", err)
		return nil, utils.InternalError("Server Is In An Illegal IO State")
	}
	_, contentStr, _ := strings.Cut(string(data), "\n")
	var content any
	if err := json.Unmarshal([]byte(contentStr), &content); err != nil {
		// Content is only re-parsed on read; a payload corrupted on disk
		// surfaces here, not at write time.
		log.Printf("ERROR: Malformed stored content in '%s': %v", s.filePath(owner, id), err)
		return nil, utils.InternalError("Server Is In An Illegal IO State")
	}
	return content, nil
}

// Create writes a new file owned by user and returns its id. The id is the
// current epoch-millisecond time; if that id is already taken in the owner's
// namespace it is incremented until free, so two creates in the same
// millisecond never overwrite each other.
func (s *FileStore) Create(user string, content []byte) (int64, error) {
	if len(content) == 0 {
		content = []byte("{}")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := time.Now().UnixMilli()
	for s.containsLocked(user, id) {
		id++
	}

	if err := s.writeEntry(user, id, id, nil, content); err != nil {
		return 0, utils.InternalError("IO Error")
	}
	s.index[user] = append(s.index[user], id)
	sort.Slice(s.index[user], func(i, j int) bool { return s.index[user][i] < s.index[user][j] })
	log.Printf("INFO: Created file %d for owner '%s'", id, user)
	return id, nil
}

// Update replaces the content of a file the user owns. The modified
// timestamp is refreshed and the share list is preserved. The rewrite is
// atomic with respect to partial-write failure.
func (s *FileStore) Update(user string, id int64, content []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.containsLocked(user, id) {
		return utils.NotFound("File Not Found Or Access Denied")
	}
	meta, err := s.readMeta(user, id)
	if err != nil {
		log.Printf("ERROR: Error while reading file: %v", err)
		return utils.InternalError("Server Is In An Illegal IO State")
	}
	if err := s.writeEntry(user, id, time.Now().UnixMilli(), meta.SharedUsers, content); err != nil {
		return utils.InternalError("IO Error")
	}
	log.Printf("INFO: Updated file %d of owner '%s'", id, user)
	return nil
}

// Delete removes a file the user owns. Physical removal and the index
// removal are one logical operation: the index entry only goes away once the
// file is gone from disk.
func (s *FileStore) Delete(user string, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.containsLocked(user, id) {
		return utils.NotFound("File Not Found Or Access Denied")
	}

	if err := os.Remove(s.filePath(user, id)); err != nil && !os.IsNotExist(err) {
		log.Printf("ERROR: Failed to delete file '%s': %v", s.filePath(user, id), err)
		return utils.InternalError("IO Error")
	}
	ids := s.index[user]
	for i, existing := range ids {
		if existing == id {
			s.index[user] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(s.index[user]) == 0 {
		delete(s.index, user)
	}
	// Purge from the share index directly rather than re-reading the file's
	// own share list, which may be unreadable by this point.
	for sharer, entries := range s.shared {
		if entries[id] == user {
			s.removeSharedLocked(sharer, id)
		}
	}
	log.Printf("INFO: Deleted file %d of owner '%s'", id, user)
	return nil
}

// --- Sharing ---

// GetSharers returns the user ids a file is shared with. Owner only.
func (s *FileStore) GetSharers(user string, id int64) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.containsLocked(user, id) {
		return nil, utils.NotFound("File Not Found Or Access Denied")
	}
	meta, err := s.readMeta(user, id)
	if err != nil {
		log.Printf("ERROR: Error while reading file: %v", err)
		return nil, utils.InternalError("Server Is In An Illegal IO State")
	}
	return meta.SharedUsers, nil
}

// SetSharers replaces the whole share list of a file the user owns. Every
// target must be an existing user other than the owner; duplicates are
// dropped while preserving order. An empty list removes all shares.
func (s *FileStore) SetSharers(user string, id int64, targets []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.containsLocked(user, id) {
		return utils.NotFound("File Not Found Or Access Denied")
	}

	unique := make([]string, 0, len(targets))
	seen := make(map[string]struct{}, len(targets))
	for _, target := range targets {
		if target == user {
			return utils.BadRequest("Cannot Share With Owner")
		}
		if _, err := s.users.GetUser(target); err != nil {
			return utils.BadRequest(fmt.Sprintf("Unknown User '%s'", target))
		}
		if _, ok := seen[target]; ok {
			continue
		}
		seen[target] = struct{}{}
		unique = append(unique, target)
	}

	meta, err := s.readMeta(user, id)
	if err != nil {
		log.Printf("ERROR: Error while reading file: %v", err)
		return utils.InternalError("Server Is In An Illegal IO State")
	}
	data, err := os.ReadFile(s.filePath(user, id))
	if err != nil {
		return utils.InternalError("Server Is In An Illegal IO State")
	}
	_, content, _ := strings.Cut(string(data), "\n")
	if err := s.writeEntry(user, id, meta.Modified, unique, []byte(content)); err != nil {
		return utils.InternalError("IO Error")
	}

	for _, sharer := range meta.SharedUsers {
		s.removeSharedLocked(sharer, id)
	}
	for _, sharer := range unique {
		s.addSharedLocked(sharer, id, user)
	}
	log.Printf("INFO: Set %d sharer(s) on file %d of owner '%s'", len(unique), id, user)
	return nil
}

// RemoveSharer removes a single user from a file's share list. Removing a
// user that is not on the list is a no-op.
func (s *FileStore) RemoveSharer(user string, id int64, target string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.containsLocked(user, id) {
		return utils.NotFound("File Not Found Or Access Denied")
	}
	meta, err := s.readMeta(user, id)
	if err != nil {
		log.Printf("ERROR: Error while reading file: %v", err)
		return utils.InternalError("Server Is In An Illegal IO State")
	}

	foundIndex := -1
	for i, sharer := range meta.SharedUsers {
		if sharer == target {
			foundIndex = i
			break
		}
	}
	if foundIndex == -1 {
		return nil
	}
	remaining := append(meta.SharedUsers[:foundIndex], meta.SharedUsers[foundIndex+1:]...)

	data, err := os.ReadFile(s.filePath(user, id))
	if err != nil {
		return utils.InternalError("Server Is In An Illegal IO State")
	}
	_, content, _ := strings.Cut(string(data), "\n")
	if err := s.writeEntry(user, id, meta.Modified, remaining, []byte(content)); err != nil {
		return utils.InternalError("IO Error")
	}
	s.removeSharedLocked(target, id)
	log.Printf("INFO: Removed sharer '%s' from file %d of owner '%s'", target, id, user)
	return nil
}
