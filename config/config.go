// Package config defines the configuration surface store.Open consumes
// to build a recorder.Interface. It is a plain struct populated by the
// caller; loading it from the environment is left to the caller rather
// than wired to a specific configuration source.
package config

// Factory selects which recorder.Interface backend store.Open builds.
type Factory string

const (
	FactoryMemory   Factory = "memory"
	FactorySQLite   Factory = "sqlite"
	FactoryPostgres Factory = "postgres"
)

// Config lists the recognized keys so an env-loader (left to the
// caller) is a thin adapter rather than a redesign.
type Config struct {
	// InfrastructureFactory selects the recorder backend.
	InfrastructureFactory Factory

	// SQLiteDBName is the file path (or ":memory:") for store/sqlite.
	SQLiteDBName string

	// PostgresHost, PostgresPort, PostgresUser, PostgresPassword and
	// PostgresDatabase compose the DSN for store/postgres.
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDatabase string
	PostgresSSLMode  string

	// CipherTopic names the registered cipher.Cipher, e.g.
	// "cipher:chacha20poly1305"; empty means cipher.None.
	CipherTopic string
	// CipherKey is the raw key material for the selected cipher.
	CipherKey []byte

	// CompressorTopic names the registered compressor.Compressor, e.g.
	// "compress:zstd" or "compress:gzip"; empty means compressor.None.
	CompressorTopic string
}
