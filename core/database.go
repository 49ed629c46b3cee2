package core

import (
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

type Database struct {
	Driver string `yaml:"driver"`
	URL    string `yaml:"url"`
}

func (d *Database) Compile() error {
	if d.Driver == "" {
		d.Driver = DriverSQLite
	}
	if d.Driver != DriverSQLite && d.Driver != DriverMySQL {
		return fmt.Errorf("unsupported database driver '%s'", d.Driver)
	}
	if d.URL == "" {
		if d.Driver == DriverMySQL {
			return fmt.Errorf("database url is required for driver %s", d.Driver)
		}
		d.URL = "meterlink.db"
	}
	return nil
}

func (d Database) dialector() gorm.Dialector {
	if d.Driver == DriverMySQL {
		return mysql.Open(d.URL)
	}
	return sqlite.Open(sqliteDSN(d.URL))
}

// sqliteDSN enables foreign keys and a busy timeout on the file.
func sqliteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	return fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
}
