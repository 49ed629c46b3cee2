package core

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/evilsocket/islazy/fs"
	"github.com/evilsocket/islazy/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/evilsocket/meterlink/models"
)

// Store owns every persisted row. Each exported operation is a single
// transaction, writes are serialized by the embedded mutex.
type Store struct {
	sync.Mutex

	conf Database
	db   *gorm.DB
}

// Filter selects measurements by identity, empty fields match anything.
type Filter struct {
	SampleName    string
	ParameterName string
	PositionName  string
}

func OpenStore(conf Database, debug bool) (*Store, error) {
	if err := conf.Compile(); err != nil {
		return nil, err
	}

	if conf.Driver == DriverSQLite && !fs.Exists(conf.URL) {
		log.Info("creating new database %s", conf.URL)
	}

	level := logger.Silent
	if debug {
		level = logger.Warn
	}

	db, err := gorm.Open(conf.dialector(), &gorm.Config{
		Logger: logger.Default.LogMode(level),
	})
	if err != nil {
		return nil, &StorageError{Op: "open", Err: err}
	}

	if conf.Driver == DriverSQLite {
		// one connection, sqlite allows a single writer anyway
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
	}

	log.Debug("connected to the %s database", conf.Driver)

	if err = db.AutoMigrate(&models.Setting{}, &models.Measurement{}, &models.Attribute{}); err != nil {
		return nil, &StorageError{Op: "migrate", Err: err}
	}

	return &Store{conf: conf, db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) SaveSettings(settings Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(settings)
	if err != nil {
		return &StorageError{Op: "save settings", Err: err}
	}

	s.Lock()
	defer s.Unlock()

	err = s.db.Transaction(func(tx *gorm.DB) error {
		row := models.Setting{
			Key:       models.CurrentSettingsKey,
			Value:     string(data),
			UpdatedAt: time.Now().UTC(),
		}
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
	})
	if err != nil {
		return &StorageError{Op: "save settings", Err: err}
	}

	log.Debug("settings saved: %s", data)
	return nil
}

// LoadCurrentSettings returns the last saved snapshot, found is false if none
// was ever saved.
func (s *Store) LoadCurrentSettings() (settings Settings, found bool, err error) {
	var row models.Setting

	err = s.db.Where(&models.Setting{Key: models.CurrentSettingsKey}).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Settings{}, false, nil
	} else if err != nil {
		return Settings{}, false, &StorageError{Op: "load settings", Err: err}
	}

	if err = json.Unmarshal([]byte(row.Value), &settings); err != nil {
		return Settings{}, false, &StorageError{Op: "load settings", Err: err}
	}

	return settings, true, nil
}

// SaveMeasurement appends the measurement and its attributes, returning the
// assigned identifier. Measurements without any present reading are refused.
func (s *Store) SaveMeasurement(m *models.Measurement) (uint, error) {
	if !m.HasValues() {
		return 0, ErrNoValues
	}

	m.ID = 0
	m.UploadStatus = models.NotUploaded
	m.UploadedAt = nil
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	m.Timestamp = m.Timestamp.UTC()
	for i := range m.Attributes {
		m.Attributes[i].ID = 0
		m.Attributes[i].MeasurementID = 0
	}

	s.Lock()
	defer s.Unlock()

	err := s.db.Transaction(func(tx *gorm.DB) error {
		return tx.Create(m).Error
	})
	if err != nil {
		m.ID = 0
		return 0, &StorageError{Op: "save measurement", Err: err}
	}

	return m.ID, nil
}

func (s *Store) UpdateUploadStatus(id uint, status models.UploadStatus) error {
	if !status.Valid() {
		return &StorageError{Op: "update status", Err: errors.New("invalid status " + string(status))}
	}

	s.Lock()
	defer s.Unlock()

	return s.db.Transaction(func(tx *gorm.DB) error {
		var existing models.Measurement
		err := tx.Select("id", "erp_upload_status").Take(&existing, id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &NotFoundError{ID: id}
		} else if err != nil {
			return &StorageError{Op: "update status", Err: err}
		}

		if existing.UploadStatus == status {
			return nil
		} else if existing.UploadStatus == models.Uploaded {
			return ErrStatusRegression
		}

		updates := map[string]interface{}{"erp_upload_status": status}
		if status == models.Uploaded {
			updates["uploaded_at"] = time.Now().UTC()
		}

		if err = tx.Model(&models.Measurement{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return &StorageError{Op: "update status", Err: err}
		}
		return nil
	})
}

// GetUnuploadedMeasurements returns pending measurements oldest first.
func (s *Store) GetUnuploadedMeasurements() ([]models.Measurement, error) {
	var pending []models.Measurement

	err := s.db.Preload("Attributes", func(db *gorm.DB) *gorm.DB {
		return db.Order("id asc")
	}).
		Where("erp_upload_status = ?", models.NotUploaded).
		Order("timestamp asc").
		Order("id asc").
		Find(&pending).Error
	if err != nil {
		return nil, &StorageError{Op: "get unuploaded", Err: err}
	}

	return pending, nil
}

// GetMeasurements returns the most recent measurements matching the filter,
// a limit <= 0 means no limit.
func (s *Store) GetMeasurements(filter Filter, limit int) ([]models.Measurement, error) {
	var list []models.Measurement

	q := s.db.Preload("Attributes", func(db *gorm.DB) *gorm.DB {
		return db.Order("id asc")
	})
	if filter.SampleName != "" {
		q = q.Where("sample_name = ?", filter.SampleName)
	}
	if filter.ParameterName != "" {
		q = q.Where("parameter_name = ?", filter.ParameterName)
	}
	if filter.PositionName != "" {
		q = q.Where("position_name = ?", filter.PositionName)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	if err := q.Order("timestamp desc").Order("id desc").Find(&list).Error; err != nil {
		return nil, &StorageError{Op: "get measurements", Err: err}
	}

	return list, nil
}
