package cleanup

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/specialistvlad/bakegridgo/internal/guard"
	"github.com/specialistvlad/bakegridgo/internal/scene"
	"github.com/specialistvlad/bakegridgo/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweep_RestoresScene(t *testing.T) {
	t.Parallel()
	ctx, _ := testutil.Context(t)
	// --- Arrange ---
	sc := testutil.SavedScene(t,
		[]*scene.Object{testutil.Quad("Body", 0.1, 0.1, 0.5, "Skin", "Cloth")},
		testutil.Materials("Skin", "Cloth"),
	)
	pristine := sc.Fingerprint()

	// Leftovers of a crashed run.
	require.NoError(t, sc.AddUVLayer("Body", guard.WorkUVLayer, 1, 0, true))
	require.NoError(t, sc.AddAttribute("Body", guard.AttributeName("ID_mat")))
	require.NoError(t, sc.AddNode("Skin", guard.CaptureNode("rough")))
	require.NoError(t, sc.AddNode("Cloth", guard.ProtectionImage))
	require.NoError(t, sc.AddImage(scene.Image{Name: guard.ProtectionImage, Width: 1, Height: 1}))
	require.NoError(t, sc.AddNode("Skin", "Principled BSDF"))

	root := testutil.WriteFiles(t, map[string]string{
		"Body_color.png":                 "keep",
		"sub/Body_rough.png.bt_tmp12345": "partial",
	})

	// --- Act ---
	var audit bytes.Buffer
	report, err := Sweep(ctx, sc, root, &audit)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, 6, report.Removed(""))
	assert.Equal(t, 1, report.Removed(KindTempFile))
	assert.Equal(t, "attribute=1 image=1 node=2 temp_file=1 uv_layer=1", report.Summary())

	require.NoError(t, sc.RemoveNode("Skin", "Principled BSDF"))
	assert.Equal(t, pristine, sc.Fingerprint(), "only reserved artifacts are removed")

	reloaded, err := scene.Load(sc.Path())
	require.NoError(t, err)
	assert.Empty(t, reloaded.Find(guard.IsArtifact), "the repaired scene is written back")

	assert.FileExists(t, filepath.Join(root, "Body_color.png"))
	assert.NoFileExists(t, filepath.Join(root, "sub", "Body_rough.png.bt_tmp12345"))

	lines := 0
	s := bufio.NewScanner(&audit)
	for s.Scan() {
		var a Audit
		require.NoError(t, json.Unmarshal(s.Bytes(), &a))
		assert.True(t, a.Removed)
		lines++
	}
	assert.Equal(t, 6, lines)
}

const bodyScene = `{"objects":[{"name":"Body","materials":["Skin"],"active_uv":0,"vertices":[[0,0,0],[1,0,0]],"uv_layers":[{"name":"UVMap","coords":[{"u":0.1,"v":0.1},{"u":0.6,"v":0.6}]},{"name":"BakeLayer","coords":[{"u":0.2,"v":0.2},{"u":0.7,"v":0.7}]}],"bake_uv":"BakeLayer"}],"materials":[{"name":"Skin"}]}`

func TestSweep_NothingToClean(t *testing.T) {
	t.Parallel()
	ctx, _ := testutil.Context(t)
	// --- Arrange ---
	dir := testutil.WriteFiles(t, map[string]string{"scene.json": bodyScene})
	path := filepath.Join(dir, "scene.json")
	sc, err := scene.Load(path)
	require.NoError(t, err)

	// --- Act ---
	report, err := Sweep(ctx, sc, filepath.Join(t.TempDir(), "missing"), nil)

	// --- Assert ---
	require.NoError(t, err)
	assert.Empty(t, report.Entries)
	assert.Equal(t, "nothing to clean", report.Summary())
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, bodyScene, string(raw), "a clean scene file is left untouched")
	assert.NoFileExists(t, scene.RecoveryPath(path))
}

func TestSweep_RecoveryFileOfCrashedRun(t *testing.T) {
	t.Parallel()
	ctx, _ := testutil.Context(t)
	// --- Arrange ---
	dir := testutil.WriteFiles(t, map[string]string{"scene.json": bodyScene})
	path := filepath.Join(dir, "scene.json")
	live, err := scene.Load(path)
	require.NoError(t, err)
	pristine := live.Fingerprint()

	// The state a crashed run held when it died.
	require.NoError(t, live.AddUVLayer("Body", guard.WorkUVLayer, 1, 0, true))
	require.NoError(t, live.AddNode("Skin", guard.CaptureNode("rough")))
	require.NoError(t, live.Checkpoint())

	trail, ok, err := scene.LoadRecovery(path)
	require.NoError(t, err)
	require.True(t, ok)
	obj, _ := trail.Object("Body")
	require.Equal(t, guard.WorkUVLayer, obj.BakeUV)

	// --- Act ---
	repaired, err := Sweep(ctx, trail, "", nil)
	require.NoError(t, err)
	sc, err := scene.Load(path)
	require.NoError(t, err)
	var audit bytes.Buffer
	report, err := Sweep(ctx, sc, "", &audit)

	// --- Assert ---
	require.NoError(t, err)
	obj, _ = trail.Object("Body")
	assert.Equal(t, "BakeLayer", obj.BakeUV, "the bake layer the user had comes back")
	assert.Equal(t, pristine, trail.Fingerprint())
	assert.Equal(t, "node=1 uv_layer=1", repaired.Summary())

	assert.Equal(t, "node=1 uv_layer=1", report.Summary())
	assert.Equal(t, 2, bytes.Count(audit.Bytes(), []byte("\n")))
	assert.NoFileExists(t, scene.RecoveryPath(path))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, bodyScene, string(raw), "the scene file is never rewritten for a recovery file")
}

func TestSweep_RepairedSceneFileKeepsUnmodeledMembers(t *testing.T) {
	t.Parallel()
	ctx, _ := testutil.Context(t)
	// --- Arrange ---
	dir := testutil.WriteFiles(t, map[string]string{"scene.json": bodyScene})
	path := filepath.Join(dir, "scene.json")
	dirty, err := scene.Load(path)
	require.NoError(t, err)
	require.NoError(t, dirty.AddAttribute("Body", guard.AttributeName("ID_mat")))
	require.NoError(t, dirty.Save(path))
	sc, err := scene.Load(path)
	require.NoError(t, err)

	// --- Act ---
	report, err := Sweep(ctx, sc, "", nil)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, "attribute=1", report.Summary())
	var want, got map[string]any
	require.NoError(t, json.Unmarshal([]byte(bodyScene), &want))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, want, got)
}

func TestSweep_FilesOnly(t *testing.T) {
	t.Parallel()
	ctx, _ := testutil.Context(t)

	report, err := Sweep(ctx, nil, filepath.Join(t.TempDir(), "missing"), nil)

	require.NoError(t, err)
	assert.Empty(t, report.Entries)
}

func TestSweep_IsIdempotent(t *testing.T) {
	t.Parallel()
	ctx, _ := testutil.Context(t)
	sc := scene.New([]*scene.Object{testutil.Quad("Body", 0.1, 0.1, 0.5)}, nil, nil)
	require.NoError(t, sc.AddAttribute("Body", guard.AttributeName("ID_ele")))

	first, err := Sweep(ctx, sc, "", nil)
	require.NoError(t, err)
	second, err := Sweep(ctx, sc, "", nil)
	require.NoError(t, err)

	assert.Equal(t, 1, first.Removed(""))
	assert.Zero(t, second.Removed(""))
}

func TestSweep_RecordsFailures(t *testing.T) {
	t.Parallel()
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	ctx, _ := testutil.Context(t)
	root := testutil.WriteFiles(t, map[string]string{"locked/a.png.bt_tmp1": "x"})
	locked := filepath.Join(root, "locked")
	require.NoError(t, os.Chmod(locked, 0o555))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	report, err := Sweep(ctx, nil, root, nil)

	require.Error(t, err)
	require.Len(t, report.Entries, 1)
	assert.False(t, report.Entries[0].Removed)
	assert.NotEmpty(t, report.Entries[0].Error)
}
