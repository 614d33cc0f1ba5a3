package storage

import "time"

const (
	MachineStatusActive  = "ACTIVE"
	MachineStatusInvalid = "INVALID"
)

type ConnectionRecord struct {
	ID        string
	Name      string
	Type      string
	Host      string
	Port      int
	User      string
	Password  string
	Database  string
	SSLMode   string
	CreatedAt time.Time
}

type MachineRecord struct {
	UnitID              string
	Name                string
	Enabled             bool
	SourceJSON          []byte
	ThresholdsJSON      []byte
	PollIntervalSeconds int
	ZoneCount           int
	Status              string
	StatusReason        []byte
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

type StateRecord struct {
	ID            int64
	MachineID     string
	TSUTC         time.Time
	State         string
	PreviousState string
	MeanTemp      float64
	Trend         *float64
	Explanation   []byte
}

type AlertRecord struct {
	ID          int64
	MachineID   string
	TSUTC       time.Time
	State       string
	Message     string
	Explanation []byte
	Treated     bool
}
