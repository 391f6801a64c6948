package domain

// Cell addresses one hour of one day of a year.
type Cell struct {
	DayIndex int `json:"day_index"`
	Hour     int `json:"hour"`
}

// Entry is the persisted assignment of a task to a cell.
type Entry struct {
	TaskID   string `json:"task_id"`
	DayIndex int    `json:"day_index"`
	Hour     int    `json:"hour"`
	Year     int    `json:"year"`
}

// Cell returns the address of the entry.
func (e Entry) Cell() Cell {
	return Cell{DayIndex: e.DayIndex, Hour: e.Hour}
}
