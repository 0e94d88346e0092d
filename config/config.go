package config

import (
	"fmt"
	"strings"

	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Constants

// replicaNameDelims are the characters the sync codec uses
// as field separators. Keys and values travel base64
// encoded, replica names travel verbatim, so a name must
// not contain any of them.
const replicaNameDelims = "|^;:,~=."

// Structs

// Config holds all information parsed from
// supplied config file.
type Config struct {
	RootCertLoc string
	Replication Replication
	Replicas    map[string]Replica
}

// Replication bundles the protocol parameters
// shared by all replicas of a deployment.
type Replication struct {
	BatchLimit      uint32
	ResyncTimeoutMS uint32
}

// Replica contains the connection and storage
// information for one replica of the deployment.
type Replica struct {
	Name           string
	PublicSyncAddr string
	ListenSyncAddr string
	PrometheusAddr string
	CertLoc        string
	KeyLoc         string
	LogLoc         string
}

// Functions

// LoadConfig takes in the path to the main config
// file in TOML syntax and places the values from
// the file in the corresponding struct.
func LoadConfig(configFile string) (*Config, error) {

	conf := new(Config)

	// Parse values from TOML file into struct.
	_, err := toml.DecodeFile(configFile, conf)
	if err != nil {
		return nil, fmt.Errorf("failed to read in TOML config file at '%s' with: %v", configFile, err)
	}

	// Fall back to protocol defaults where the
	// file stays silent.
	if conf.Replication.BatchLimit == 0 {
		conf.Replication.BatchLimit = 100
	}

	if conf.Replication.ResyncTimeoutMS == 0 {
		conf.Replication.ResyncTimeoutMS = 10000
	}

	// Retrieve absolute path of the directory the
	// config file lives in. Relative paths in the
	// file are resolved against it.
	absConfPath, err := filepath.Abs(configFile)
	if err != nil {
		return nil, fmt.Errorf("could not get absolute path of config file: %v", err)
	}
	absBase := filepath.Dir(absConfPath)

	// RootCertLoc
	if filepath.IsAbs(conf.RootCertLoc) != true {
		conf.RootCertLoc = filepath.Join(absBase, conf.RootCertLoc)
	}

	for name, replica := range conf.Replicas {

		if replica.Name == "" {
			replica.Name = name
		}

		if strings.ContainsAny(replica.Name, replicaNameDelims) {
			return nil, fmt.Errorf("replica name '%s' contains one of the reserved characters '%s'", replica.Name, replicaNameDelims)
		}

		if replica.ListenSyncAddr == "" {
			return nil, fmt.Errorf("replica '%s' is missing a listen address for synchronization", replica.Name)
		}

		if replica.PublicSyncAddr == "" {
			replica.PublicSyncAddr = replica.ListenSyncAddr
		}

		// Replicas[replica].CertLoc
		if filepath.IsAbs(replica.CertLoc) != true {
			replica.CertLoc = filepath.Join(absBase, replica.CertLoc)
		}

		// Replicas[replica].KeyLoc
		if filepath.IsAbs(replica.KeyLoc) != true {
			replica.KeyLoc = filepath.Join(absBase, replica.KeyLoc)
		}

		// Replicas[replica].LogLoc
		if (replica.LogLoc != "") && (filepath.IsAbs(replica.LogLoc) != true) {
			replica.LogLoc = filepath.Join(absBase, replica.LogLoc)
		}

		// Assign replica config back to main config.
		delete(conf.Replicas, name)
		conf.Replicas[replica.Name] = replica
	}

	return conf, nil
}
