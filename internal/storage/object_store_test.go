package storage

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryObjects struct {
	objects map[string][]byte
	types   map[string]string
}

func (m *memoryObjects) UploadBytes(_ context.Context, data []byte, path, contentType string) (string, error) {
	m.objects[path] = data
	m.types[path] = contentType
	return path, nil
}

func (m *memoryObjects) Download(_ context.Context, path string) ([]byte, error) {
	return m.objects[path], nil
}

func (m *memoryObjects) List(_ context.Context, prefix string) ([]ObjectInfo, error) {
	var out []ObjectInfo
	for k, v := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, ObjectInfo{Key: k, Size: int64(len(v))})
		}
	}
	return out, nil
}

func TestSnapshotArchive(t *testing.T) {
	ctx := context.Background()
	objects := &memoryObjects{objects: map[string][]byte{}, types: map[string]string{}}

	archive := NewSnapshotArchive(objects, "run-1", nil)
	key, err := archive.Archive(ctx, "quran", "112", []map[string]any{{"ayah": 1}})
	require.NoError(t, err)
	assert.Equal(t, "snapshots/run-1/quran/112.json", key)
	assert.Equal(t, "application/json", objects.types[key])

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(objects.objects[key], &decoded))
	assert.Equal(t, float64(1), decoded[0]["ayah"])

	_, err = NewSnapshotArchive(objects, "run-2", nil).Archive(ctx, "hadith", "sahih-muslim", []string{})
	require.NoError(t, err)

	all, err := ListSnapshots(ctx, objects, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	run1, err := ListSnapshots(ctx, objects, "run-1")
	require.NoError(t, err)
	require.Len(t, run1, 1)
	assert.Equal(t, key, run1[0].Key)
}

func TestReadSnapshot(t *testing.T) {
	ctx := context.Background()
	objects := &memoryObjects{objects: map[string][]byte{}, types: map[string]string{}}

	key, err := NewSnapshotArchive(objects, "run-1", nil).Archive(ctx, "quran", "1", []map[string]any{{"ayah": 1}, {"ayah": 2}})
	require.NoError(t, err)

	var records []map[string]any
	require.NoError(t, ReadSnapshot(ctx, objects, key, &records))
	assert.Len(t, records, 2)

	objects.objects["snapshots/broken.json"] = []byte("{")
	assert.Error(t, ReadSnapshot(ctx, objects, "snapshots/broken.json", &records))
	assert.ErrorContains(t, ReadSnapshot(ctx, objects, "other/key.json", &records), "not a snapshot key")
}

func TestNewMinIOStorage_RequiresBucket(t *testing.T) {
	_, err := NewMinIOStorage(MinIOConfig{Endpoint: "localhost:9000"})
	assert.Error(t, err)

	s, err := NewMinIOStorage(MinIOConfig{Endpoint: "localhost:9000", BucketName: "hikma-snapshots"})
	require.NoError(t, err)
	assert.Equal(t, "hikma-snapshots", s.bucket)
}
