package uploads_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/suPer8Hu/agent-backend/internal/uploads"
)

func TestSaveListDelete(t *testing.T) {
	store, err := uploads.NewStore(t.TempDir(), 0)
	gt.NoError(t, err).Required()

	info, err := store.Save(5, "report_q3.pdf", strings.NewReader("pdf bytes"))
	gt.NoError(t, err).Required()
	gt.Value(t, info.OriginalName).Equal("report_q3.pdf")
	gt.Value(t, info.Size).Equal(int64(9))
	gt.Bool(t, strings.HasSuffix(info.Filename, "_report_q3.pdf")).True()

	files, err := store.List(5)
	gt.NoError(t, err).Required()
	gt.Array(t, files).Length(1).Required()
	gt.Value(t, files[0].Filename).Equal(info.Filename)
	gt.Value(t, files[0].OriginalName).Equal("report_q3.pdf")

	gt.NoError(t, store.Delete(5, info.Filename)).Required()
	files, err = store.List(5)
	gt.NoError(t, err).Required()
	gt.Array(t, files).Length(0)

	err = store.Delete(5, info.Filename)
	gt.Bool(t, errors.Is(err, uploads.ErrNotFound)).True()
}

func TestList_UnknownConversation(t *testing.T) {
	store, err := uploads.NewStore(t.TempDir(), 0)
	gt.NoError(t, err).Required()

	files, err := store.List(42)
	gt.NoError(t, err).Required()
	gt.Array(t, files).Length(0)
}

func TestSave_StripsDirectories(t *testing.T) {
	root := t.TempDir()
	store, err := uploads.NewStore(root, 0)
	gt.NoError(t, err).Required()

	info, err := store.Save(1, "../../etc/passwd", strings.NewReader("x"))
	gt.NoError(t, err).Required()
	gt.Value(t, info.OriginalName).Equal("passwd")
	gt.Value(t, filepath.Dir(info.Path)).Equal(filepath.Join(store.Root(), "1"))

	_, err = store.Save(1, "..", strings.NewReader("x"))
	gt.Bool(t, errors.Is(err, uploads.ErrInvalidName)).True()
}

func TestSave_TooLarge(t *testing.T) {
	store, err := uploads.NewStore(t.TempDir(), 4)
	gt.NoError(t, err).Required()

	_, err = store.Save(1, "big.bin", strings.NewReader("12345"))
	gt.Bool(t, errors.Is(err, uploads.ErrTooLarge)).True()

	files, err := store.List(1)
	gt.NoError(t, err).Required()
	gt.Array(t, files).Length(0)
}

func TestDelete_RejectsTraversal(t *testing.T) {
	base := t.TempDir()
	root := filepath.Join(base, "uploads")
	store, err := uploads.NewStore(root, 0)
	gt.NoError(t, err).Required()

	secret := filepath.Join(base, "secret.txt")
	gt.NoError(t, os.WriteFile(secret, []byte("keep"), 0o644)).Required()

	err = store.Delete(1, "../../secret.txt")
	gt.Bool(t, errors.Is(err, uploads.ErrOutsideRoot)).True()

	_, err = os.Stat(secret)
	gt.NoError(t, err)
}

func TestResolve(t *testing.T) {
	store, err := uploads.NewStore(t.TempDir(), 0)
	gt.NoError(t, err).Required()

	p, err := store.Resolve("3/image.png")
	gt.NoError(t, err).Required()
	gt.Value(t, p).Equal(filepath.Join(store.Root(), "3", "image.png"))

	_, err = store.Resolve("/etc/passwd")
	gt.Bool(t, errors.Is(err, uploads.ErrOutsideRoot)).True()
}

func TestOriginalName(t *testing.T) {
	gt.Value(t, uploads.OriginalName("20240102_030405_my_file.txt")).Equal("my_file.txt")
	gt.Value(t, uploads.OriginalName("plain.txt")).Equal("plain.txt")
	gt.Value(t, uploads.OriginalName("not_a_stamp.txt")).Equal("not_a_stamp.txt")
}
