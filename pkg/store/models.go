package store

import "time"

// Source types of a test run.
const (
	SourceTypeFile = "file"
	SourceTypeURL  = "url"
)

// TestRun is one imported log, shown as one comparison column.
type TestRun struct {
	ID         uint    `gorm:"primaryKey" json:"id"`
	Name       string  `gorm:"not null;uniqueIndex" json:"name"`
	SourceType string  `gorm:"not null" json:"source_type"`
	SourceURL  *string `json:"source_url"`
	Enabled    bool    `gorm:"not null" json:"enabled"`

	CreatedAt time.Time `json:"created_at"`
}

// Test is a top-level test identified by its path.
type Test struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"not null;uniqueIndex" json:"name"`
}

// Subtest is a single check within a Test. Titles are unique per test.
type Subtest struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	TestID uint   `gorm:"not null;uniqueIndex:idx_subtests_test_title" json:"test_id"`
	Title  string `gorm:"not null;uniqueIndex:idx_subtests_test_title" json:"title"`

	Test *Test `gorm:"constraint:OnDelete:RESTRICT" json:"-"`
}

// NoSubtest is the SubtestID of a test-level result.
const NoSubtest uint = 0

// Result is the outcome of one test or subtest within one run. A
// test-level result has SubtestID NoSubtest so the (run, test, subtest)
// key stays enforceable by the unique index. The run and test are foreign
// keys. SubtestID cannot be one because of the sentinel, InsertResults
// checks it against the subtests table instead.
type Result struct {
	ID        uint   `gorm:"primaryKey"`
	RunID     uint   `gorm:"not null;uniqueIndex:idx_results_key,priority:1"`
	TestID    uint   `gorm:"not null;uniqueIndex:idx_results_key,priority:2;index"`
	SubtestID uint   `gorm:"not null;uniqueIndex:idx_results_key,priority:3"`
	Status    string `gorm:"not null"`
	Expected  string `gorm:"not null"`
	Message   string `gorm:"type:text"`

	Run  *TestRun `gorm:"foreignKey:RunID;constraint:OnDelete:RESTRICT"`
	Test *Test    `gorm:"foreignKey:TestID;constraint:OnDelete:RESTRICT"`
}

// Comment is a free-text note attached to one result.
type Comment struct {
	ID       uint   `gorm:"primaryKey" json:"-"`
	ResultID uint   `gorm:"not null;uniqueIndex" json:"result_id"`
	Text     string `gorm:"type:text;not null" json:"text"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Result *Result `gorm:"constraint:OnDelete:RESTRICT" json:"-"`
}

// SubtestKey identifies a subtest by its natural key.
type SubtestKey struct {
	TestID uint
	Title  string
}

// ResultKey identifies a result by its natural key.
type ResultKey struct {
	RunID     uint
	TestID    uint
	SubtestID uint
}

// Key returns the natural key of the result.
func (r *Result) Key() ResultKey {
	return ResultKey{RunID: r.RunID, TestID: r.TestID, SubtestID: r.SubtestID}
}

// Stats holds row counts per table.
type Stats struct {
	Runs     int64 `json:"runs"`
	Tests    int64 `json:"tests"`
	Subtests int64 `json:"subtests"`
	Results  int64 `json:"results"`
	Comments int64 `json:"comments"`
}
