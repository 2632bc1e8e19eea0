package recstore

import (
	"fmt"
	"reflect"
	"strings"
)

type Schema struct {
	collections       []*collectionSchema
	collectionsByName map[string]*collectionSchema
	sequences         map[string]*collectionSchema
}

type SchemaOpts struct {
}

func NewSchema(opt SchemaOpts) *Schema {
	return &Schema{
		collectionsByName: make(map[string]*collectionSchema),
		sequences:         make(map[string]*collectionSchema),
	}
}

// CollectionNames returns the names of all collections in definition order.
func (scm *Schema) CollectionNames() []string {
	names := make([]string, 0, len(scm.collections))
	for _, cs := range scm.collections {
		names = append(names, cs.name)
	}
	return names
}

// SequenceNames returns the names of all sequences in definition order.
func (scm *Schema) SequenceNames() []string {
	names := make([]string, 0, len(scm.collections))
	for _, cs := range scm.collections {
		names = append(names, cs.seqName)
	}
	return names
}

func (scm *Schema) collectionNamed(name string) *collectionSchema {
	return scm.collectionsByName[strings.ToLower(name)]
}

type collectionSchema struct {
	schema          *Schema
	name            string
	seqName         string
	schemaVer       uint64
	rowType         reflect.Type
	valueEnc        encodingMethod
	suppressContent bool
}

type collectionOpt int

const (
	// SuppressContentWhenLogging keeps record contents out of verbose logs.
	SuppressContentWhenLogging = collectionOpt(1)
)

// SchemaVersion sets the schema version stamped into every value header.
type SchemaVersion uint64

// CollectionDef describes a collection of R records. Bind it to an open
// store with NewCollection.
type CollectionDef[R Record[R]] struct {
	cs *collectionSchema
}

func (def *CollectionDef[R]) Name() string {
	return def.cs.name
}

func (def *CollectionDef[R]) SequenceName() string {
	return def.cs.seqName
}

// DefineCollection adds a collection stored in its own bucket, with
// identifiers minted by the named sequence. Options: MsgPack or JSON value
// encoding, SchemaVersion, SuppressContentWhenLogging.
func DefineCollection[R Record[R]](scm *Schema, name, sequenceName string, opts ...any) *CollectionDef[R] {
	rowType := reflect.TypeFor[R]()
	if rowType.Kind() != reflect.Struct {
		panic(fmt.Errorf("%s: record type must be a struct, got %v", name, rowType))
	}
	validateName("collection", name)
	validateName("sequence", sequenceName)

	cs := &collectionSchema{
		schema:    scm,
		name:      name,
		seqName:   sequenceName,
		schemaVer: 1,
		rowType:   rowType,
		valueEnc:  defaultValueEncoding,
	}
	for _, opt := range opts {
		switch opt := opt.(type) {
		case encodingMethod:
			cs.valueEnc = opt
		case SchemaVersion:
			if opt == 0 || opt > maxSchemaVersion {
				panic(fmt.Errorf("%s: invalid schema version %d", name, opt))
			}
			cs.schemaVer = uint64(opt)
		case collectionOpt:
			switch opt {
			case SuppressContentWhenLogging:
				cs.suppressContent = true
			default:
				panic(fmt.Errorf("%s: invalid option %v", name, opt))
			}
		default:
			panic(fmt.Errorf("%s: invalid option %T %v", name, opt, opt))
		}
	}

	lower := strings.ToLower(name)
	if scm.collectionsByName[lower] != nil {
		panic(fmt.Errorf("duplicate collection %s", name))
	}
	if scm.sequences[sequenceName] != nil {
		panic(fmt.Errorf("%s: sequence %s already used by collection %s", name, sequenceName, scm.sequences[sequenceName].name))
	}
	scm.collections = append(scm.collections, cs)
	scm.collectionsByName[lower] = cs
	scm.sequences[sequenceName] = cs
	return &CollectionDef[R]{cs}
}

func validateName(kind, name string) {
	if name == "" {
		panic(fmt.Errorf("empty %s name", kind))
	}
	if strings.HasPrefix(name, "_") {
		panic(fmt.Errorf("%s name %q: names starting with an underscore are reserved", kind, name))
	}
}
