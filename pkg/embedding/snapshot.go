package embedding

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Snapshot is a named set of embedding tables as written by a trainer.
// ObjectTable is nil for models that draw objects from the entity table.
type Snapshot struct {
	Variant   string
	Entities  []string
	Relations []string
	// BaseRelations is the number of relations read from data. When it is half
	// of len(Relations), relation i+BaseRelations is the reciprocal of relation i.
	// Zero means every relation is a base relation.
	BaseRelations int

	EntityTable   *Table
	RelationTable *Table
	ObjectTable   *Table
}

// Save writes the snapshot to filename.
func (s *Snapshot) Save(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if err := s.Write(file); err != nil {
		return err
	}
	return file.Close()
}

// Write encodes the snapshot as text:
//
//	<variant> <entities> <relations> <width> <base relations>
//	# Entities
//	E	<name> v1 v2 ...
//	# Relations
//	R	<name> v1 v2 ...
//	# Objects
//	O	<name> v1 v2 ...
func (s *Snapshot) Write(w io.Writer) error {
	if err := s.validate(); err != nil {
		return err
	}
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "%s %d %d %d %d\n", s.Variant, len(s.Entities), len(s.Relations), s.EntityTable.Width(), s.NumBaseRelations())

	fmt.Fprintln(bw, "# Entities")
	writeRows(bw, "E", s.Entities, s.EntityTable)

	fmt.Fprintln(bw, "# Relations")
	writeRows(bw, "R", s.Relations, s.RelationTable)

	if s.ObjectTable != nil {
		fmt.Fprintln(bw, "# Objects")
		writeRows(bw, "O", s.Entities, s.ObjectTable)
	}

	return bw.Flush()
}

func writeRows(w *bufio.Writer, tag string, names []string, table *Table) {
	for i, name := range names {
		w.WriteString(tag)
		w.WriteByte('\t')
		w.WriteString(name)
		for _, v := range table.Row(int64(i)) {
			w.WriteByte(' ')
			w.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
		}
		w.WriteByte('\n')
	}
}

// NumBaseRelations returns the number of relations that are not reciprocals.
func (s *Snapshot) NumBaseRelations() int {
	if s.BaseRelations == 0 {
		return len(s.Relations)
	}
	return s.BaseRelations
}

// HasReciprocals reports whether every base relation has a reciprocal.
func (s *Snapshot) HasReciprocals() bool {
	return len(s.Relations) > 0 && 2*s.NumBaseRelations() == len(s.Relations)
}

func (s *Snapshot) validate() error {
	if base := s.NumBaseRelations(); base < 0 || (base != len(s.Relations) && 2*base != len(s.Relations)) {
		return fmt.Errorf("%d base relations do not fit %d relations", base, len(s.Relations))
	}
	if s.EntityTable == nil || s.RelationTable == nil {
		return fmt.Errorf("snapshot %q is missing entity or relation table", s.Variant)
	}
	if s.EntityTable.Rows() != len(s.Entities) {
		return fmt.Errorf("entity table has %d rows for %d entities", s.EntityTable.Rows(), len(s.Entities))
	}
	if s.RelationTable.Rows() != len(s.Relations) {
		return fmt.Errorf("relation table has %d rows for %d relations", s.RelationTable.Rows(), len(s.Relations))
	}
	if s.ObjectTable != nil && s.ObjectTable.Rows() != len(s.Entities) {
		return fmt.Errorf("object table has %d rows for %d entities", s.ObjectTable.Rows(), len(s.Entities))
	}
	return nil
}

// LoadSnapshot reads a snapshot written by Save.
func LoadSnapshot(filename string) (*Snapshot, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", filename, err)
	}
	defer file.Close()

	s, err := ReadSnapshot(file)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filename, err)
	}
	return s, nil
}

// ReadSnapshot decodes the text format produced by Write.
func ReadSnapshot(r io.Reader) (*Snapshot, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("empty snapshot")
	}
	var (
		s                         Snapshot
		numEntities, numRelations int
		width                     int
	)
	header := strings.Fields(scanner.Text())
	if len(header) != 4 && len(header) != 5 {
		return nil, fmt.Errorf("bad header %q: expected 4 or 5 fields", scanner.Text())
	}
	// headers without a base relation count predate reciprocal relations
	if len(header) == 4 {
		header = append(header, "0")
	}
	if _, err := fmt.Sscanf(strings.Join(header, " "), "%s %d %d %d %d",
		&s.Variant, &numEntities, &numRelations, &width, &s.BaseRelations); err != nil {
		return nil, fmt.Errorf("bad header %q: %w", scanner.Text(), err)
	}

	rows := map[string][][]float64{}
	lineNo := 1
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		tag, rest, ok := strings.Cut(line, "\t")
		if !ok {
			return nil, fmt.Errorf("line %d: missing tag", lineNo)
		}
		fields := strings.Fields(rest)
		if len(fields) != width+1 {
			return nil, fmt.Errorf("line %d: expected %d values, got %d", lineNo, width, len(fields)-1)
		}
		vec := make([]float64, width)
		for d, f := range fields[1:] {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			vec[d] = v
		}
		switch tag {
		case "E":
			s.Entities = append(s.Entities, fields[0])
		case "R":
			s.Relations = append(s.Relations, fields[0])
		case "O":
		default:
			return nil, fmt.Errorf("line %d: unknown tag %q", lineNo, tag)
		}
		rows[tag] = append(rows[tag], vec)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if len(s.Entities) != numEntities || len(s.Relations) != numRelations {
		return nil, fmt.Errorf("header declares %d entities and %d relations, found %d and %d",
			numEntities, numRelations, len(s.Entities), len(s.Relations))
	}

	var err error
	if s.EntityTable, err = FromRows(rows["E"]); err != nil {
		return nil, fmt.Errorf("entities: %w", err)
	}
	if s.RelationTable, err = FromRows(rows["R"]); err != nil {
		return nil, fmt.Errorf("relations: %w", err)
	}
	if len(rows["O"]) > 0 {
		if s.ObjectTable, err = FromRows(rows["O"]); err != nil {
			return nil, fmt.Errorf("objects: %w", err)
		}
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}
