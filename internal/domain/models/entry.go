package models

// Kind separates the two ledgers a user keeps. Types and entries of one kind
// never reference rows of the other.
type Kind string

const (
	KindExpense Kind = "expense"
	KindRevenue Kind = "revenue"
)

func (k Kind) Valid() bool {
	return k == KindExpense || k == KindRevenue
}

// EntryType is a user-defined category such as "Rent" or "Salary".
type EntryType struct {
	ID     int64  `json:"id"`
	UserID int64  `json:"-"`
	Kind   Kind   `json:"-"`
	Name   string `json:"name"`
}

// Entry is one monthly amount booked against an EntryType of the same kind
// and the same owner.
type Entry struct {
	ID       int64
	UserID   int64
	Kind     Kind
	Year     int
	Month    int
	TypeID   int64
	TypeName string
	Amount   Money
}

// EntryFilter narrows an entry listing. Zero fields are ignored.
type EntryFilter struct {
	Year   int
	Month  int
	TypeID int64
}

type MonthProjection struct {
	Month         int   `json:"month"`
	TotalRevenue  Money `json:"totalRevenue"`
	TotalExpenses Money `json:"totalExpenses"`
	NetProfit     Money `json:"netProfit"`
}
