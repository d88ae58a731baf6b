package sqlrunner

import (
	"context"
	"database/sql/driver"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
)

// extensionConnector opens SQLite connections through the cgo driver, the one
// that permits loadable extensions such as mod_spatialite, and loads the
// configured extensions on every new connection.
type extensionConnector struct {
	dsn        string
	extensions []string
	driver     *sqlite3.SQLiteDriver
}

func newExtensionConnector(dsn string, extensions []string) *extensionConnector {
	names := make([]string, 0, len(extensions))
	for _, extension := range extensions {
		if trimmed := strings.TrimSpace(extension); trimmed != "" {
			names = append(names, trimmed)
		}
	}
	return &extensionConnector{
		dsn:        dsn,
		extensions: names,
		driver:     &sqlite3.SQLiteDriver{Extensions: names},
	}
}

func (c *extensionConnector) Connect(context.Context) (driver.Conn, error) {
	conn, err := c.driver.Open(c.dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite with extensions [%s]: %w", strings.Join(c.extensions, ", "), err)
	}
	return conn, nil
}

func (c *extensionConnector) Driver() driver.Driver {
	return c.driver
}
