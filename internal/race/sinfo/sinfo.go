// Package sinfo maintains the static information database: the loaded
// images and the instructions the instrumentation has touched.
//
// Instructions are interned: an instruction is identified by (image,
// offset), created lazily the first time that address is seen, and immutable
// afterwards. The interning table guarantees pointer equality for the same
// static instruction across the whole run, which the race database relies
// on for deduplication.
//
// The database persists across runs so that race pairs recorded in one
// profiling run can be resolved back to source locations in a later
// verification run.
package sinfo

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v2"

	"github.com/kolkov/raceverify/internal/race/event"
)

// PseudoImageName is the image used for addresses that cannot be attributed
// to any loaded image.
const PseudoImageName = "pseudo_image"

// commonLibPrefixes marks images whose accesses are skipped when the
// ignore_lib knob is set.
var commonLibPrefixes = []string{"libc", "libm", "libgcc", "libstdc++", "ld-"}

// Image describes a loaded binary image and its statically allocated data.
type Image struct {
	Name      string     `yaml:"name"`
	Low       event.Addr `yaml:"low"`
	High      event.Addr `yaml:"high"`
	DataStart event.Addr `yaml:"data_start"`
	DataSize  uint64     `yaml:"data_size"`
	BssStart  event.Addr `yaml:"bss_start"`
	BssSize   uint64     `yaml:"bss_size"`
}

// IsPthread reports whether the image is the pthread runtime library, whose
// internal accesses are never analyzed.
func (img *Image) IsPthread() bool {
	base := filepath.Base(img.Name)
	return strings.HasPrefix(base, "libpthread")
}

// IsCommonLib reports whether the image is a common system library.
func (img *Image) IsCommonLib() bool {
	base := filepath.Base(img.Name)
	for _, p := range commonLibPrefixes {
		if strings.HasPrefix(base, p) {
			return true
		}
	}
	return false
}

// Inst identifies a static instruction by image and offset and carries its
// cached debug information. Instances are interned by StaticInfo and
// immutable once created.
type Inst struct {
	Image  string     `yaml:"image"`
	Offset event.Addr `yaml:"offset"`
	File   string     `yaml:"file,omitempty"`
	Line   int        `yaml:"line,omitempty"`
	Column int        `yaml:"column,omitempty"`
	Opcode string     `yaml:"opcode,omitempty"`
}

// FileBase returns the basename of the source file, the form used to match
// instructions against potential-statement pairs.
func (i *Inst) FileBase() string {
	if i.File == "" {
		return ""
	}
	return filepath.Base(i.File)
}

// String renders the instruction for reports: "image+0xoff file:line".
func (i *Inst) String() string {
	var sb strings.Builder
	sb.WriteString(filepath.Base(i.Image))
	sb.WriteString("+0x")
	appendHex(&sb, uint64(i.Offset))
	if i.File != "" {
		sb.WriteByte(' ')
		sb.WriteString(i.File)
		sb.WriteByte(':')
		appendDec(&sb, i.Line)
	}
	return sb.String()
}

func appendHex(sb *strings.Builder, v uint64) {
	const digits = "0123456789abcdef"
	if v == 0 {
		sb.WriteByte('0')
		return
	}
	var buf [16]byte
	n := len(buf)
	for v > 0 {
		n--
		buf[n] = digits[v&0xf]
		v >>= 4
	}
	sb.Write(buf[n:])
}

func appendDec(sb *strings.Builder, v int) {
	if v < 0 {
		sb.WriteByte('-')
		v = -v
	}
	if v == 0 {
		sb.WriteByte('0')
		return
	}
	var buf [20]byte
	n := len(buf)
	for v > 0 {
		n--
		buf[n] = byte('0' + v%10)
		v /= 10
	}
	sb.Write(buf[n:])
}

type instKey struct {
	image  string
	offset event.Addr
}

// StaticInfo is the interning table for images and instructions.
//
// All methods are safe for concurrent use; the instrumentation callbacks
// intern instructions from multiple application threads.
type StaticInfo struct {
	mu     sync.Mutex
	images map[string]*Image
	insts  map[instKey]*Inst
}

// New creates an empty static info database.
func New() *StaticInfo {
	return &StaticInfo{
		images: make(map[string]*Image),
		insts:  make(map[instKey]*Inst),
	}
}

// FindImage returns the image with the given name, or nil.
func (s *StaticInfo) FindImage(name string) *Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.images[name]
}

// CreateImage registers a new image. An existing image with the same name
// is returned unchanged: image identity is by name.
func (s *StaticInfo) CreateImage(name string) *Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	if img, ok := s.images[name]; ok {
		return img
	}
	img := &Image{Name: name}
	s.images[name] = img
	return img
}

// FindInst returns the interned instruction for (image, offset), or nil if
// that address has never been seen.
func (s *StaticInfo) FindInst(image string, offset event.Addr) *Inst {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insts[instKey{image, offset}]
}

// GetInst returns the interned instruction for (image, offset), creating it
// on first sight. The debug fields are filled by the first creator and
// never change afterwards.
func (s *StaticInfo) GetInst(image string, offset event.Addr, file string, line, column int, opcode string) *Inst {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := instKey{image, offset}
	if inst, ok := s.insts[key]; ok {
		return inst
	}
	inst := &Inst{
		Image:  image,
		Offset: offset,
		File:   file,
		Line:   line,
		Column: column,
		Opcode: opcode,
	}
	s.insts[key] = inst
	return inst
}

// Insts returns a snapshot of every interned instruction.
func (s *StaticInfo) Insts() []*Inst {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Inst, 0, len(s.insts))
	for _, inst := range s.insts {
		out = append(out, inst)
	}
	return out
}

type sinfoFile struct {
	Images []*Image `yaml:"images"`
	Insts  []*Inst  `yaml:"insts"`
}

// Load populates the database from a previously saved file. A missing file
// is not an error: the caller proceeds with empty tables and the database
// is rebuilt during the run.
func (s *StaticInfo) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "sinfo: read %s", path)
	}
	var file sinfoFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return errors.Wrapf(err, "sinfo: parse %s", path)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, img := range file.Images {
		s.images[img.Name] = img
	}
	for _, inst := range file.Insts {
		s.insts[instKey{inst.Image, inst.Offset}] = inst
	}
	return nil
}

// Save writes the database to path, replacing any previous contents.
func (s *StaticInfo) Save(path string) error {
	s.mu.Lock()
	file := sinfoFile{
		Images: make([]*Image, 0, len(s.images)),
		Insts:  make([]*Inst, 0, len(s.insts)),
	}
	for _, img := range s.images {
		file.Images = append(file.Images, img)
	}
	for _, inst := range s.insts {
		file.Insts = append(file.Insts, inst)
	}
	s.mu.Unlock()

	data, err := yaml.Marshal(&file)
	if err != nil {
		return errors.Wrap(err, "sinfo: marshal")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "sinfo: write %s", path)
	}
	return nil
}
