package tle

import (
	"time"

	"github.com/star/skypass/internal/elements"
)

// Entry is one catalog object: its parsed elements and the source lines.
type Entry struct {
	Elements elements.Set
	Line1    string
	Line2    string
}

// NORADID returns the catalog number.
func (e Entry) NORADID() int { return e.Elements.NORADID }

// EpochRange represents the minimum and maximum epoch times in a dataset.
type EpochRange struct {
	Min time.Time `json:"min"`
	Max time.Time `json:"max"`
}

// Dataset is an immutable catalog snapshot from one source.
type Dataset struct {
	Source     string
	FetchedAt  time.Time
	EpochRange EpochRange
	Satellites []Entry

	index map[int]int
}

// NewDataset builds a dataset and its lookup index. When a catalog number
// appears more than once the entry with the latest epoch wins.
func NewDataset(source string, fetchedAt time.Time, entries []Entry) *Dataset {
	ds := &Dataset{
		Source:     source,
		FetchedAt:  fetchedAt,
		Satellites: entries,
		index:      make(map[int]int, len(entries)),
	}
	for i, e := range entries {
		epoch := e.Elements.Epoch
		if i == 0 || epoch.Before(ds.EpochRange.Min) {
			ds.EpochRange.Min = epoch
		}
		if i == 0 || epoch.After(ds.EpochRange.Max) {
			ds.EpochRange.Max = epoch
		}
		if j, ok := ds.index[e.NORADID()]; ok && !epoch.After(entries[j].Elements.Epoch) {
			continue
		}
		ds.index[e.NORADID()] = i
	}
	return ds
}

// Lookup returns the entry for a catalog number.
func (d *Dataset) Lookup(noradID int) (Entry, bool) {
	i, ok := d.index[noradID]
	if !ok {
		return Entry{}, false
	}
	return d.Satellites[i], true
}
