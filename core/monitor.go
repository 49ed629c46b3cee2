package core

import (
	"sync"
)

// Monitor holds the state shared with the presentation layer, every access
// goes through the lock.
type Monitor struct {
	sync.Mutex

	latest       Sample
	hasLatest    bool
	newData      bool
	uploadFailed bool
}

type MonitorView struct {
	Latest       Sample
	HasLatest    bool
	NewData      bool
	UploadFailed bool
}

func NewMonitor() *Monitor {
	return &Monitor{}
}

// Publish stores the latest sample, flagging new data when it was persisted.
func (m *Monitor) Publish(sample Sample, persisted bool) {
	m.Lock()
	defer m.Unlock()

	m.latest = sample.Clone()
	m.hasLatest = true
	if persisted {
		m.newData = true
	}
}

func (m *Monitor) SetUploadFailed(failed bool) {
	m.Lock()
	defer m.Unlock()
	m.uploadFailed = failed
}

func (m *Monitor) UploadFailed() bool {
	m.Lock()
	defer m.Unlock()
	return m.uploadFailed
}

// TakeNewData returns the latest sample and clears the new data flag, ok is
// false if nothing new was published since the last call.
func (m *Monitor) TakeNewData() (sample Sample, ok bool) {
	m.Lock()
	defer m.Unlock()

	if !m.newData {
		return Sample{}, false
	}
	m.newData = false
	return m.latest.Clone(), true
}

func (m *Monitor) View() MonitorView {
	m.Lock()
	defer m.Unlock()

	view := MonitorView{
		HasLatest:    m.hasLatest,
		NewData:      m.newData,
		UploadFailed: m.uploadFailed,
	}
	if m.hasLatest {
		view.Latest = m.latest.Clone()
	}
	return view
}
