package models

// EntityClass groups entities that share one capability policy.
type EntityClass string

const (
	ClassCenterManagement EntityClass = "center_management"
	ClassStaff            EntityClass = "staff"
	ClassCaseRecords      EntityClass = "case_records"
	ClassOperations       EntityClass = "operations"
	ClassCommunications   EntityClass = "communications"
)

// Classes lists every known entity class.
var Classes = []EntityClass{
	ClassCenterManagement,
	ClassStaff,
	ClassCaseRecords,
	ClassOperations,
	ClassCommunications,
}

// Valid reports whether c is a known entity class.
func (c EntityClass) Valid() bool {
	for _, known := range Classes {
		if c == known {
			return true
		}
	}
	return false
}

// Operation is an action checked against the capability table.
type Operation string

const (
	OpRead   Operation = "read"
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Operations lists every operation.
var Operations = []Operation{OpRead, OpCreate, OpUpdate, OpDelete}

// Valid reports whether op is a known operation.
func (op Operation) Valid() bool {
	switch op {
	case OpRead, OpCreate, OpUpdate, OpDelete:
		return true
	}
	return false
}

// Strategy is how an entity reaches its tenant column.
type Strategy int

const (
	// StrategyDirect means the entity carries its own tenant column.
	StrategyDirect Strategy = iota + 1
	// StrategyJoinedThrough means the tenant column lives on a parent row.
	// Reads join the parent; writes use a correlated EXISTS check.
	StrategyJoinedThrough
	// StrategyExistsThrough means the tenant column lives on a parent row and
	// is always enforced with a correlated EXISTS check.
	StrategyExistsThrough
)

func (s Strategy) String() string {
	switch s {
	case StrategyDirect:
		return "direct"
	case StrategyJoinedThrough:
		return "joined_through"
	case StrategyExistsThrough:
		return "exists_through"
	}
	return "unknown"
}

// Tenancy declares an entity's tenancy strategy. For parent strategies the
// tenant column is the parent's.
type Tenancy struct {
	Strategy Strategy

	// Column is the tenant column, on the entity for Direct and on the
	// parent table otherwise.
	Column string

	ParentTable    string
	ParentIDColumn string
	ForeignKey     string // column on the entity referencing ParentIDColumn
}

// Direct declares an entity that carries its own tenant column.
func Direct(column string) Tenancy {
	return Tenancy{Strategy: StrategyDirect, Column: column}
}

// JoinedThrough declares an entity scoped by a Direct parent reached through
// foreignKey.
func JoinedThrough(parent Entity, foreignKey string) Tenancy {
	return throughParent(StrategyJoinedThrough, parent, foreignKey)
}

// ExistsThrough declares an entity scoped by a Direct parent, always checked
// with a correlated EXISTS.
func ExistsThrough(parent Entity, foreignKey string) Tenancy {
	return throughParent(StrategyExistsThrough, parent, foreignKey)
}

func throughParent(s Strategy, parent Entity, foreignKey string) Tenancy {
	return Tenancy{
		Strategy:       s,
		Column:         parent.Tenancy.Column,
		ParentTable:    parent.Table,
		ParentIDColumn: parent.IDColumn,
		ForeignKey:     foreignKey,
	}
}

// BinaryField describes a large binary payload column.
type BinaryField struct {
	Column     string
	NameColumn string // optional file name column
	TypeColumn string // optional content type column
}

// Entity is the static descriptor of one relation. Table and column names
// come only from descriptors, never from request data.
type Entity struct {
	Name     string
	Table    string
	IDColumn string
	Class    EntityClass
	Tenancy  Tenancy

	// Columns are the business columns callers may write.
	Columns []string

	// SubtypeColumn is the column matched against role subtype allow-lists.
	SubtypeColumn string

	Binary *BinaryField
}

// Audit column names present on every mutable relation.
const (
	CreatedByColumn = "created_by"
	UpdatedByColumn = "updated_by"
)

// StampsTenant reports whether writes carry the tenant column themselves.
// Parent-scoped entities inherit their tenant, and an entity whose tenant
// column is its own id (centers) has nothing to stamp.
func (e Entity) StampsTenant() bool {
	return e.Tenancy.Strategy == StrategyDirect && e.Tenancy.Column != e.IDColumn
}

// Writable reports whether a caller may supply column in a payload.
func (e Entity) Writable(column string) bool {
	if column == e.IDColumn {
		return false
	}
	if column == CreatedByColumn || column == UpdatedByColumn {
		return true
	}
	if e.StampsTenant() && column == e.Tenancy.Column {
		return true
	}
	for _, c := range e.Columns {
		if c == column {
			return true
		}
	}
	return false
}
