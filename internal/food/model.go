package food

import (
	"errors"
	"fmt"
	"time"
)

const secondsPerDay = 60 * 60 * 24

var ErrInvalidFoodID = errors.New("invalid food id")

type Group int

const (
	Breakfast Group = 1
	Lunch     Group = 2
	Dinner    Group = 3
)

var groupNames = map[Group]string{
	Breakfast: "Breakfast",
	Lunch:     "Lunch",
	Dinner:    "Dinner",
}

func (g Group) String() string {
	if name, ok := groupNames[g]; ok {
		return name
	}
	return fmt.Sprintf("Group(%d)", int(g))
}

func (g Group) Valid() bool {
	_, ok := groupNames[g]
	return ok
}

// ID encodes a menu entry as day*100 + group*10 + variant, where day is the
// UTC start of the food's day in seconds since the epoch.
type ID int64

func NewID(day int64, group Group, variant int) ID {
	return ID(day*100 + int64(group)*10 + int64(variant))
}

// ParseID checks that id decodes to a known meal group.
func ParseID(id int64) (ID, error) {
	if id <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidFoodID, id)
	}
	fid := ID(id)
	if !fid.Group().Valid() {
		return 0, fmt.Errorf("%w: %d has unknown group %d", ErrInvalidFoodID, id, int(fid.Group()))
	}
	return fid, nil
}

func (id ID) Variant() int { return int(id % 10) }

func (id ID) Group() Group { return Group((id / 10) % 10) }

// Day returns the food's day in seconds since the epoch.
func (id ID) Day() int64 { return int64(id / 100) }

// DayGroup identifies every variant of one meal on one day.
func (id ID) DayGroup() int64 { return int64(id / 10) }

func (id ID) Int64() int64 { return int64(id) }

// Features tells what can be done with a menu entry right now.
type Features struct {
	Orders        bool `json:"orders"`
	FoodStock     bool `json:"foodStock"`
	RemainingFood bool `json:"remainingFood"`
}

// Bits renders features in the portal wire format.
func (f Features) Bits() int {
	bits := 0
	if f.Orders {
		bits |= 3
	}
	if f.FoodStock {
		bits |= 4
	}
	return bits
}

type MenuEntry struct {
	ID        ID
	Name      string
	Group     string
	Text      string
	Price     int
	Date      time.Time
	Labels    string
	Features  Features
	Remaining Remaining
}

// Remaining holds live counters; -1 means unknown.
type Remaining struct {
	ToTake  int
	ToOrder int
}

// DateMillis is the food day in milliseconds, as the client app expects.
func (e MenuEntry) DateMillis() int64 {
	return e.Date.UnixMilli()
}

// Credit is the mock account balance of a user.
func Credit(userID int64) int64 {
	return 512 + 10*userID
}
