package sql

import (
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"io/ioutil"
	"time"

	"github.com/go-sql-driver/mysql"
	"golang.org/x/xerrors"
)

// ConfigFileDescription describes the format of the configuration file.
const ConfigFileDescription = `File must contain a JSON object of the following form:
   {
    "dataSourceName": "[username[:password]@][protocol[(address)]]/dbname",
    "tlsDisable": "false|true", (defaults to false, otherwise the following fields are mandatory)
    "tlsServerName": "serverName",
    "rootCertPath": "/path/server-ca.pem",
    "clientCertPath": "/path/client-cert.pem",
    "clientKeyPath": "/path/client-key.pem"
   }`

const collation = "utf8mb4_general_ci"

// Config holds the fields needed to connect to a MySQL instance.
type Config struct {
	// DataSourceName is the connection string of go-sql-driver. The database
	// name is mandatory.
	DataSourceName string `json:"dataSourceName"`
	// TLSDisable uses an unencrypted connection when true.
	TLSDisable bool `json:"tlsDisable"`
	// TLSServerName is the domain name of the server.
	TLSServerName string `json:"tlsServerName"`
	// RootCertPath is the root certificate of the server.
	RootCertPath string `json:"rootCertPath"`
	// ClientCertPath is the client certificate.
	ClientCertPath string `json:"clientCertPath"`
	// ClientKeyPath is the client private key.
	ClientKeyPath string `json:"clientKeyPath"`

	// tlsName is the name under which the TLS configuration is registered
	// with the driver.
	tlsName string
}

// ParseConfigFromFile reads the configuration file and registers the TLS
// configuration, if any, with the driver.
func ParseConfigFromFile(path string) (*Config, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, xerrors.Errorf("failed to read config '%s': %v", path, err)
	}

	var config Config
	err = json.Unmarshal(data, &config)
	if err != nil {
		return nil, xerrors.Errorf("failed to parse config '%s': %v", path, err)
	}

	if !config.TLSDisable {
		hash := sha256.Sum256(append([]byte(path+":"), data...))
		config.tlsName = hex.EncodeToString(hash[:])

		err = config.registerTLS()
		if err != nil {
			return nil, xerrors.Errorf("failed to register TLS config: %v", err)
		}
	}

	return &config, nil
}

// DSN returns the data source name to open the database with.
func (c *Config) DSN() (string, error) {
	cfg, err := mysql.ParseDSN(c.DataSourceName)
	if err != nil {
		return "", xerrors.Errorf("invalid data source name: %v", err)
	}

	if cfg.DBName == "" {
		return "", xerrors.New("missing database name")
	}

	cfg.Collation = collation
	cfg.ParseTime = true
	cfg.Loc = time.UTC

	if !c.TLSDisable {
		if c.tlsName == "" {
			return "", xerrors.New("TLS config not registered")
		}

		cfg.TLSConfig = c.tlsName
	}

	return cfg.FormatDSN(), nil
}

func (c *Config) registerTLS() error {
	pool := x509.NewCertPool()

	pem, err := ioutil.ReadFile(c.RootCertPath)
	if err != nil {
		return xerrors.Errorf("failed to read root certificate: %v", err)
	}

	if !pool.AppendCertsFromPEM(pem) {
		return xerrors.New("failed to append root certificate")
	}

	pair, err := tls.LoadX509KeyPair(c.ClientCertPath, c.ClientKeyPath)
	if err != nil {
		return xerrors.Errorf("failed to load client key pair: %v", err)
	}

	err = mysql.RegisterTLSConfig(c.tlsName, &tls.Config{
		RootCAs:      pool,
		Certificates: []tls.Certificate{pair},
		ServerName:   c.TLSServerName,
		MinVersion:   tls.VersionTLS12,
	})
	if err != nil {
		return xerrors.Errorf("driver refused config: %v", err)
	}

	return nil
}
