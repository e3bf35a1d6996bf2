package db

import (
	"fileserver/models"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupFileStore builds a user store with two regular users and a file store
// in a fresh directory.
func setupFileStore(t *testing.T) (*FileStore, *UserStore, string) {
	t.Helper()
	tempDir := t.TempDir()
	users, err := NewUserStore(filepath.Join(tempDir, "users.json"), testBcryptCost)
	require.NoError(t, err)
	require.NoError(t, users.CreateUser("admin", "alice", "secret1", models.RoleUser, true))
	require.NoError(t, users.CreateUser("admin", "bob", "secret1", models.RoleUser, true))

	filesDir := filepath.Join(tempDir, "files")
	files, err := NewFileStore(filesDir, users)
	require.NoError(t, err)
	return files, users, filesDir
}

func TestFileStore_CreateGetRoundTrip(t *testing.T) {
	files, _, _ := setupFileStore(t)

	id, err := files.Create("alice", []byte(`{"a": 1, "b": "two"}`))
	require.NoError(t, err)
	require.NotZero(t, id)

	content, err := files.Get("alice", id, false)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": float64(1), "b": "two"}, content)

	meta, err := files.Get("alice", id, true)
	require.NoError(t, err)
	m, ok := meta.(models.FileMetadata)
	require.True(t, ok)
	assert.Equal(t, "alice", m.Owner)
	assert.Equal(t, id, m.Created)
	assert.Equal(t, id, m.Modified, "a fresh file's modified time equals its id")
	assert.Empty(t, m.SharedUsers)

	require.NoError(t, files.Delete("alice", id))
	_, err = files.Get("alice", id, false)
	assertHTTPStatus(t, err, http.StatusNotFound)
	_, err = files.Get("alice", id, true)
	assertHTTPStatus(t, err, http.StatusNotFound)
}

func TestFileStore_DefaultContent(t *testing.T) {
	files, _, _ := setupFileStore(t)

	id, err := files.Create("alice", nil)
	require.NoError(t, err)

	content, err := files.Get("alice", id, false)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{}, content)
}

func TestFileStore_CreateCollisionBump(t *testing.T) {
	files, _, _ := setupFileStore(t)

	seen := make(map[int64]bool)
	for i := 0; i < 10; i++ {
		id, err := files.Create("alice", []byte(`{}`))
		require.NoError(t, err)
		assert.False(t, seen[id], "file ids must be unique within an owner's namespace")
		seen[id] = true
	}

	ids, err := files.List("alice", "alice", nil)
	require.NoError(t, err)
	assert.Len(t, ids, 10)
}

func TestFileStore_List(t *testing.T) {
	files, _, _ := setupFileStore(t)

	ids, err := files.List("alice", "alice", nil)
	require.NoError(t, err)
	assert.Empty(t, ids, "an owner without files lists empty, not an error")

	var created []int64
	for i := 0; i < 3; i++ {
		id, err := files.Create("alice", []byte(`{}`))
		require.NoError(t, err)
		created = append(created, id)
	}

	ids, err = files.List("alice", "alice", nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, created, ids)
	assert.IsIncreasing(t, ids)

	// Another owner's listing needs an admin.
	_, err = files.List("bob", "alice", nil)
	assertHTTPStatus(t, err, http.StatusForbidden)
	adminView, err := files.List("admin", "alice", nil)
	require.NoError(t, err)
	assert.Len(t, adminView, 3)

	// Invalid target id.
	_, err = files.List("alice", "not valid!", nil)
	assertHTTPStatus(t, err, http.StatusBadRequest)
}

func TestFileStore_OwnershipOpacity(t *testing.T) {
	files, _, _ := setupFileStore(t)
	id, err := files.Create("alice", []byte(`{}`))
	require.NoError(t, err)

	// Another user's probe of an existing id is indistinguishable from a
	// missing file.
	_, err = files.Get("bob", id, false)
	assertHTTPStatus(t, err, http.StatusNotFound)
	err = files.Update("bob", id, []byte(`{"hax": true}`))
	assertHTTPStatus(t, err, http.StatusNotFound)
	err = files.Delete("bob", id)
	assertHTTPStatus(t, err, http.StatusNotFound)
}

func TestFileStore_Update(t *testing.T) {
	files, _, _ := setupFileStore(t)
	id, err := files.Create("alice", []byte(`{"v": 1}`))
	require.NoError(t, err)

	require.NoError(t, files.Update("alice", id, []byte(`{"v": 2}`)))
	content, err := files.Get("alice", id, false)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"v": float64(2)}, content)

	meta, err := files.Get("alice", id, true)
	require.NoError(t, err)
	m := meta.(models.FileMetadata)
	assert.GreaterOrEqual(t, m.Modified, id, "update refreshes the modified time")
	assert.Equal(t, id, m.Created)

	err = files.Update("alice", 1234567890123, []byte(`{}`))
	assertHTTPStatus(t, err, http.StatusNotFound)
}

func TestFileStore_StartupScan(t *testing.T) {
	files, users, dir := setupFileStore(t)

	id1, err := files.Create("alice", []byte(`{"n": 1}`))
	require.NoError(t, err)
	id2, err := files.Create("bob", []byte(`{"n": 2}`))
	require.NoError(t, err)

	// Foreign entries in the directory must be ignored by the scan.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "alice.123.db"), []byte("0;\n{}"), 0600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir"), 0700))

	reloaded, err := NewFileStore(dir, users)
	require.NoError(t, err)

	aliceIDs, err := reloaded.List("alice", "alice", nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{id1}, aliceIDs, "a 3-digit id does not match the scan pattern")

	bobIDs, err := reloaded.List("bob", "bob", nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{id2}, bobIDs)

	content, err := reloaded.Get("alice", id1, false)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"n": float64(1)}, content)
}

func TestFileStore_Sharing(t *testing.T) {
	files, _, _ := setupFileStore(t)
	id, err := files.Create("alice", []byte(`{"secret": 42}`))
	require.NoError(t, err)

	// Not shared yet.
	_, err = files.Get("bob", id, false)
	assertHTTPStatus(t, err, http.StatusNotFound)

	require.NoError(t, files.SetSharers("alice", id, []string{"bob"}))

	sharers, err := files.GetSharers("alice", id)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, sharers)

	content, err := files.Get("bob", id, false)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"secret": float64(42)}, content)
	assert.Equal(t, []int64{id}, files.ListSharedWith("bob"))

	// Read access only.
	err = files.Update("bob", id, []byte(`{}`))
	assertHTTPStatus(t, err, http.StatusNotFound)
	err = files.Delete("bob", id)
	assertHTTPStatus(t, err, http.StatusNotFound)

	// Shares are visible in the metadata view.
	meta, err := files.Get("bob", id, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, meta.(models.FileMetadata).SharedUsers)

	require.NoError(t, files.RemoveSharer("alice", id, "bob"))
	_, err = files.Get("bob", id, false)
	assertHTTPStatus(t, err, http.StatusNotFound)
	assert.Empty(t, files.ListSharedWith("bob"))
}

func TestFileStore_Sharing_Validation(t *testing.T) {
	files, _, _ := setupFileStore(t)
	id, err := files.Create("alice", []byte(`{}`))
	require.NoError(t, err)

	err = files.SetSharers("alice", id, []string{"nobody"})
	assertHTTPStatus(t, err, http.StatusBadRequest)
	err = files.SetSharers("alice", id, []string{"alice"})
	assertHTTPStatus(t, err, http.StatusBadRequest)

	// Duplicates collapse.
	require.NoError(t, files.SetSharers("alice", id, []string{"bob", "bob"}))
	sharers, err := files.GetSharers("alice", id)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, sharers)

	// Only the owner manages shares.
	_, err = files.GetSharers("bob", id)
	assertHTTPStatus(t, err, http.StatusNotFound)
	err = files.SetSharers("bob", id, nil)
	assertHTTPStatus(t, err, http.StatusNotFound)

	// Removing a user that is not on the list is a no-op.
	require.NoError(t, files.RemoveSharer("alice", id, "bob"))
	require.NoError(t, files.RemoveSharer("alice", id, "bob"))

	// An empty replacement list clears all shares.
	require.NoError(t, files.SetSharers("alice", id, []string{"bob"}))
	require.NoError(t, files.SetSharers("alice", id, nil))
	sharers, err = files.GetSharers("alice", id)
	require.NoError(t, err)
	assert.Empty(t, sharers)
}

func TestFileStore_Sharing_SurvivesRestart(t *testing.T) {
	files, users, dir := setupFileStore(t)
	id, err := files.Create("alice", []byte(`{"n": 7}`))
	require.NoError(t, err)
	require.NoError(t, files.SetSharers("alice", id, []string{"bob"}))

	reloaded, err := NewFileStore(dir, users)
	require.NoError(t, err)

	content, err := reloaded.Get("bob", id, false)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"n": float64(7)}, content)
	assert.Equal(t, []int64{id}, reloaded.ListSharedWith("bob"))
}

func TestFileStore_Sharing_ClearedByDelete(t *testing.T) {
	files, _, _ := setupFileStore(t)
	id, err := files.Create("alice", []byte(`{}`))
	require.NoError(t, err)
	require.NoError(t, files.SetSharers("alice", id, []string{"bob"}))

	require.NoError(t, files.Delete("alice", id))
	assert.Empty(t, files.ListSharedWith("bob"))
}

func TestFileStore_Sharing_ClearedByDeleteOfCorruptFile(t *testing.T) {
	files, _, dir := setupFileStore(t)
	id, err := files.Create("alice", []byte(`{}`))
	require.NoError(t, err)
	require.NoError(t, files.SetSharers("alice", id, []string{"bob"}))

	// Corrupt the metadata line on disk; the delete must still revoke bob's
	// access instead of leaving a stale share-index entry behind.
	path := filepath.Join(dir, fmt.Sprintf("alice.%d.db", id))
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0600))

	require.NoError(t, files.Delete("alice", id))
	assert.Empty(t, files.ListSharedWith("bob"))
	_, err = files.Get("bob", id, false)
	assertHTTPStatus(t, err, http.StatusNotFound)
}

func TestFileStore_ContentFilter(t *testing.T) {
	files, _, _ := setupFileStore(t)

	matching, err := files.Create("alice", []byte(`{"kind": "report", "pages": 30}`))
	require.NoError(t, err)
	_, err = files.Create("alice", []byte(`{"kind": "memo", "pages": 2}`))
	require.NoError(t, err)

	cond, err := ParseContentCondition("kind eq report")
	require.NoError(t, err)
	ids, err := files.List("alice", "alice", cond)
	require.NoError(t, err)
	assert.Equal(t, []int64{matching}, ids)

	cond, err = ParseContentCondition("pages gt 10")
	require.NoError(t, err)
	ids, err = files.List("alice", "alice", cond)
	require.NoError(t, err)
	assert.Equal(t, []int64{matching}, ids)

	cond, err = ParseContentCondition("missing eq x")
	require.NoError(t, err)
	ids, err = files.List("alice", "alice", cond)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestFileStore_RejectsNonDirectory(t *testing.T) {
	tempDir := t.TempDir()
	users, err := NewUserStore(filepath.Join(tempDir, "users.json"), testBcryptCost)
	require.NoError(t, err)

	notADir := filepath.Join(tempDir, "occupied")
	require.NoError(t, os.WriteFile(notADir, []byte("x"), 0600))

	_, err = NewFileStore(notADir, users)
	assert.Error(t, err)
}

func TestFileStore_DiskLayout(t *testing.T) {
	files, _, dir := setupFileStore(t)
	id, err := files.Create("alice", []byte(`{"x": 1}`))
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, fmt.Sprintf("alice.%d.db", id)))
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("%d;\n{\"x\": 1}", id), string(data))
}
