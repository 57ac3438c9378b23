package writer

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"

	"golang.org/x/crypto/blake2b"

	"github.com/georgepadayatti/signflow/pdf/generic"
	"github.com/georgepadayatti/signflow/pdf/reader"
)

// ErrResourceConflict is returned when overlay resources reuse a name the
// page already defines.
var ErrResourceConflict = errors.New("resource name already in use")

// overlayCategories are the resource sub-dictionaries merged by AddToPage.
var overlayCategories = []string{"Font", "XObject", "ExtGState"}

// IncrementalPdfFileWriter appends an update section to an existing file.
// The original bytes are never modified.
type IncrementalPdfFileWriter struct {
	r       *reader.PdfFileReader
	nextNum int
	changed map[int]generic.Object
}

// NewIncrementalPdfFileWriter prepares an update for the file read by r.
func NewIncrementalPdfFileWriter(r *reader.PdfFileReader) *IncrementalPdfFileWriter {
	return &IncrementalPdfFileWriter{
		r:       r,
		nextNum: r.Size(),
		changed: make(map[int]generic.Object),
	}
}

// AddObject allocates a new object number.
func (w *IncrementalPdfFileWriter) AddObject(obj generic.Object) generic.Reference {
	ref := generic.Ref(w.nextNum)
	w.nextNum++
	w.changed[ref.Number] = obj
	return ref
}

// UpdateObject replaces an existing object in the update section.
func (w *IncrementalPdfFileWriter) UpdateObject(ref generic.Reference, obj generic.Object) {
	w.changed[ref.Number] = obj
}

// HasChanges reports whether anything would be written.
func (w *IncrementalPdfFileWriter) HasChanges() bool {
	return len(w.changed) > 0
}

// editable returns a dictionary for ref that is safe to modify: the pending
// copy if one exists, otherwise a clone of the original.
func (w *IncrementalPdfFileWriter) editable(ref generic.Reference) (*generic.Dictionary, error) {
	if obj, ok := w.changed[ref.Number]; ok {
		if d, ok := obj.(*generic.Dictionary); ok {
			return d, nil
		}
	}
	obj, err := w.r.GetObject(ref.Number)
	if err != nil {
		return nil, err
	}
	d, ok := obj.(*generic.Dictionary)
	if !ok {
		return nil, fmt.Errorf("%w: object %d is not a dictionary", reader.ErrInvalidPDF, ref.Number)
	}
	clone := d.Clone().(*generic.Dictionary)
	w.changed[ref.Number] = clone
	return clone, nil
}

// AppendPage adds a page at the end of the root page tree node.
func (w *IncrementalPdfFileWriter) AppendPage(box generic.Rectangle, content []byte, resources *generic.Dictionary) (generic.Reference, error) {
	root, err := w.r.Root()
	if err != nil {
		return generic.Reference{}, err
	}
	pagesRef, ok := root.Get("Pages").(generic.Reference)
	if !ok {
		return generic.Reference{}, fmt.Errorf("%w: catalog has no page tree reference", reader.ErrInvalidPDF)
	}
	pages, err := w.editable(pagesRef)
	if err != nil {
		return generic.Reference{}, err
	}

	page := newPage(pagesRef, box, resources)
	if content != nil {
		stream, err := generic.NewFlateStream(nil, content)
		if err != nil {
			return generic.Reference{}, err
		}
		page.Set("Contents", w.AddObject(stream))
	}
	ref := w.AddObject(page)

	kids, err := w.r.ResolveArray(pages.Get("Kids"))
	if err != nil {
		return generic.Reference{}, err
	}
	pages.Set("Kids", append(kids.Clone().(generic.Array), ref))
	count, _ := pages.Int("Count")
	pages.Set("Count", generic.Integer(count+1))
	return ref, nil
}

// AddToPage draws content over the existing page at index. The original
// content is wrapped in q/Q so its graphics state cannot leak into the
// overlay. Overlay resources are merged into the page's own resources.
func (w *IncrementalPdfFileWriter) AddToPage(index int, content []byte, resources *generic.Dictionary) error {
	page, err := w.r.Page(index)
	if err != nil {
		return err
	}
	dict, err := w.editable(page.Ref)
	if err != nil {
		return err
	}

	merged, err := w.mergeResources(dict, page.Resources, resources)
	if err != nil {
		return err
	}
	dict.Set("Resources", merged)

	var contents generic.Array
	switch v := dict.Get("Contents").(type) {
	case generic.Reference:
		contents = generic.Array{v}
	case generic.Array:
		contents = v.Clone().(generic.Array)
	}
	if len(contents) > 0 {
		pre := w.AddObject(generic.NewStream(nil, []byte("q\n")))
		contents = append(generic.Array{pre}, contents...)
		content = append([]byte("Q\n"), content...)
	}
	stream, err := generic.NewFlateStream(nil, content)
	if err != nil {
		return err
	}
	dict.Set("Contents", append(contents, w.AddObject(stream)))
	return nil
}

func (w *IncrementalPdfFileWriter) mergeResources(dict, inherited, overlay *generic.Dictionary) (*generic.Dictionary, error) {
	// A direct Resources entry may already be a pending merge.
	base := dict.Dict("Resources")
	if base == nil {
		base = inherited.Clone().(*generic.Dictionary)
	}
	for _, cat := range overlayCategories {
		add := overlay.Dict(cat)
		if add == nil {
			continue
		}
		existing, err := w.r.ResolveDict(base.Get(cat))
		if err != nil {
			return nil, err
		}
		var sub *generic.Dictionary
		if existing == nil {
			sub = generic.NewDictionary()
		} else {
			sub = existing.Clone().(*generic.Dictionary)
		}
		for _, k := range add.Keys() {
			if sub.Has(k) {
				return nil, fmt.Errorf("%w: /%s /%s", ErrResourceConflict, cat, k)
			}
			sub.Set(k, add.Get(k))
		}
		base.Set(cat, sub)
	}
	return base, nil
}

// Write emits the original bytes followed by the update section.
func (w *IncrementalPdfFileWriter) Write(out io.Writer) error {
	data := w.r.Data()
	var buf bytes.Buffer
	buf.Write(data)
	if len(data) > 0 && data[len(data)-1] != '\n' {
		buf.WriteByte('\n')
	}

	nums := make([]int, 0, len(w.changed))
	for n := range w.changed {
		nums = append(nums, n)
	}
	sort.Ints(nums)

	offsets := make(map[int]int, len(nums))
	for _, n := range nums {
		offsets[n] = buf.Len()
		ind := &generic.Indirect{Reference: generic.Ref(n), Object: w.changed[n]}
		if err := ind.Write(&buf); err != nil {
			return fmt.Errorf("failed to write object %d: %w", n, err)
		}
	}

	// A rebuilt file has no trustworthy previous section, so every known
	// object is listed again.
	if w.r.Rebuilt {
		for n, e := range w.r.XRef {
			if _, ok := offsets[n]; !ok && e.Type == reader.EntryInUse {
				offsets[n] = e.Offset
			}
		}
	}

	trailer := w.trailer(buf.Bytes()[len(data):])
	var err error
	if w.r.HasXRefStream && !w.r.Rebuilt {
		err = w.writeXRefStream(&buf, offsets, trailer)
	} else {
		err = w.writeXRefTable(&buf, offsets, trailer)
	}
	if err != nil {
		return err
	}
	_, err = out.Write(buf.Bytes())
	return err
}

func (w *IncrementalPdfFileWriter) trailer(section []byte) *generic.Dictionary {
	t := generic.NewDictionary()
	src := w.r.Trailer
	for _, key := range []string{"Root", "Info"} {
		if v := src.Get(key); v != nil {
			t.Set(key, v)
		}
	}
	sum := blake2b.Sum256(section)
	first := &generic.String{Value: sum[:16], Hex: true}
	if ids := src.Array("ID"); len(ids) == 2 {
		if s, ok := ids[0].(*generic.String); ok {
			first = s
		}
	}
	t.Set("ID", generic.Array{first, &generic.String{Value: sum[:16], Hex: true}})
	if !w.r.Rebuilt {
		t.Set("Prev", generic.Integer(w.r.StartXRef))
	}
	return t
}

// subsections groups sorted object numbers into consecutive runs.
func subsections(nums []int) [][]int {
	var out [][]int
	for _, n := range nums {
		if len(out) > 0 {
			last := out[len(out)-1]
			if last[len(last)-1] == n-1 {
				out[len(out)-1] = append(last, n)
				continue
			}
		}
		out = append(out, []int{n})
	}
	return out
}

func sortedKeys(m map[int]int) []int {
	nums := make([]int, 0, len(m))
	for n := range m {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}

func (w *IncrementalPdfFileWriter) writeXRefTable(buf *bytes.Buffer, offsets map[int]int, trailer *generic.Dictionary) error {
	xrefOffset := buf.Len()
	buf.WriteString("xref\n")
	if w.r.Rebuilt {
		buf.WriteString("0 1\n0000000000 65535 f \n")
	}
	for _, run := range subsections(sortedKeys(offsets)) {
		fmt.Fprintf(buf, "%d %d\n", run[0], len(run))
		for _, n := range run {
			fmt.Fprintf(buf, "%010d 00000 n \n", offsets[n])
		}
	}
	trailer.Set("Size", generic.Integer(w.nextNum))
	buf.WriteString("trailer\n")
	if err := trailer.Write(buf); err != nil {
		return err
	}
	fmt.Fprintf(buf, "\nstartxref\n%d\n%%%%EOF\n", xrefOffset)
	return nil
}

func (w *IncrementalPdfFileWriter) writeXRefStream(buf *bytes.Buffer, offsets map[int]int, trailer *generic.Dictionary) error {
	xrefNum := w.nextNum
	xrefOffset := buf.Len()
	offsets[xrefNum] = xrefOffset

	var index generic.Array
	var rows []byte
	for _, run := range subsections(sortedKeys(offsets)) {
		index = append(index, generic.Integer(run[0]), generic.Integer(len(run)))
		for _, n := range run {
			off := offsets[n]
			rows = append(rows, 1, byte(off>>24), byte(off>>16), byte(off>>8), byte(off), 0, 0)
		}
	}

	dict := generic.Dict(
		"Type", generic.Name("XRef"),
		"Size", generic.Integer(xrefNum+1),
		"Index", index,
		"W", generic.Array{generic.Integer(1), generic.Integer(4), generic.Integer(2)},
	)
	for _, k := range trailer.Keys() {
		dict.Set(k, trailer.Get(k))
	}
	stream, err := generic.NewFlateStream(dict, rows)
	if err != nil {
		return err
	}
	ind := &generic.Indirect{Reference: generic.Ref(xrefNum), Object: stream}
	if err := ind.Write(buf); err != nil {
		return err
	}
	fmt.Fprintf(buf, "startxref\n%d\n%%%%EOF\n", xrefOffset)
	return nil
}
