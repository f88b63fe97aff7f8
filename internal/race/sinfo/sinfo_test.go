package sinfo

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInstInterning(t *testing.T) {
	s := New()

	i1 := s.GetInst("app", 0x40, "main.cpp", 17, 3, "mov")
	i2 := s.GetInst("app", 0x40, "other.cpp", 99, 0, "add")
	require.Same(t, i1, i2, "same (image, offset) must intern to the same Inst")

	// Debug info is owned by the first creator.
	require.Equal(t, "main.cpp", i2.File)
	require.Equal(t, 17, i2.Line)

	i3 := s.GetInst("app", 0x44, "main.cpp", 18, 1, "mov")
	require.NotSame(t, i1, i3)

	require.Same(t, i1, s.FindInst("app", 0x40))
	require.Nil(t, s.FindInst("app", 0x99))
}

func TestImageIdentityByName(t *testing.T) {
	s := New()
	img := s.CreateImage("app")
	require.Same(t, img, s.CreateImage("app"))
	require.Same(t, img, s.FindImage("app"))
	require.Nil(t, s.FindImage("missing"))
}

func TestImageClassification(t *testing.T) {
	require.True(t, (&Image{Name: "/lib/x86_64/libpthread-2.31.so"}).IsPthread())
	require.False(t, (&Image{Name: "/usr/bin/app"}).IsPthread())
	require.True(t, (&Image{Name: "/lib/libc-2.31.so"}).IsCommonLib())
	require.True(t, (&Image{Name: "/lib64/ld-linux-x86-64.so.2"}).IsCommonLib())
	require.False(t, (&Image{Name: "/usr/bin/app"}).IsCommonLib())
}

func TestInstFileBaseAndString(t *testing.T) {
	i := &Inst{Image: "/usr/bin/app", Offset: 0x1a, File: "/src/dir/file9.cpp", Line: 17}
	require.Equal(t, "file9.cpp", i.FileBase())
	require.Equal(t, "app+0x1a /src/dir/file9.cpp:17", i.String())

	bare := &Inst{Image: "app", Offset: 0}
	require.Equal(t, "", bare.FileBase())
	require.Equal(t, "app+0x0", bare.String())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sinfo.db")

	s := New()
	img := s.CreateImage("app")
	img.Low, img.High = 0x400000, 0x500000
	img.DataStart, img.DataSize = 0x480000, 4096
	s.GetInst("app", 0x40, "file9.cpp", 17, 0, "mov")
	require.NoError(t, s.Save(path))

	loaded := New()
	require.NoError(t, loaded.Load(path))
	require.Equal(t, img.High, loaded.FindImage("app").High)

	inst := loaded.FindInst("app", 0x40)
	require.NotNil(t, inst)
	require.Equal(t, "file9.cpp", inst.File)
	require.Equal(t, 17, inst.Line)
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	s := New()
	require.NoError(t, s.Load(filepath.Join(t.TempDir(), "absent.db")))
	require.Empty(t, s.Insts())
}
