// Package config loads the gateway's YAML settings file into the internal
// model types, normalizing the handful of shapes the YAML schema lets vary
// (sshCredentials as a map or a signing-service config; clusters as a list
// or a "path:dir" directory reference) into one representation and failing
// fast on ambiguity, following the CheckAndSetDefaults idiom used
// throughout this codebase's config types.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gravitational/trace"
	"gopkg.in/yaml.v3"

	"github.com/eth-cscs/firecrest-v2/internal/model"
)

// Defaults mirror the settings schema's documented defaults.
const (
	DefaultMaxOpsFileSize = 5 * 1024 * 1024
	DefaultMaxPartSize    = 2 * 1024 * 1024 * 1024
	DefaultIdleTimeout    = 60 * time.Second
	DefaultConnectTimeout = 5 * time.Second
	DefaultLoginTimeout   = 5 * time.Second
	DefaultExecuteTimeout = 5 * time.Second
	DefaultKeepAlive      = 5 * time.Second
	DefaultMaxClients     = 100
)

// EnvConfigPath names the environment variables that may carry the
// absolute path to the settings YAML file, checked in order.
var EnvConfigPath = []string{"YAML_CONFIG_FILE", "INPUT_YAML_CONFIG_FILE"}

// AuthConfig is the `auth` YAML section: OIDC token verification and
// authorization-service wiring. The gateway core treats both as external
// collaborators; only the fields the core needs to thread through are
// modeled here.
type AuthConfig struct {
	Authentication struct {
		TokenURL    string            `yaml:"tokenUrl"`
		PublicCerts []string          `yaml:"publicCerts"`
		Scopes      map[string]string `yaml:"scopes"`
	} `yaml:"authentication"`
	Authorization struct {
		URL            string        `yaml:"url"`
		Timeout        time.Duration `yaml:"timeout"`
		MaxConnections int           `yaml:"maxConnections"`
	} `yaml:"authorization"`
}

// StaticKey is one entry of a static sshCredentials map.
type StaticKey struct {
	PrivateKey     string `yaml:"privateKey"`
	PrivateKeyFile string `yaml:"privateKeyFile"`
	PublicCert     string `yaml:"publicCert"`
	Passphrase     string `yaml:"passphrase"`
}

// SSHCredentialsConfig is the normalized form of the dynamic
// `sshCredentials` YAML key: either a signing-service endpoint, or a static
// per-user key map, never both.
type SSHCredentialsConfig struct {
	// SigningServiceURL is non-empty when sshCredentials names a signing
	// service rather than a static key map.
	SigningServiceURL string
	MaxConnections    int

	StaticKeys map[string]StaticKey
}

// rawSSHCredentials matches the two possible YAML shapes so yaml.v3 can
// unmarshal either one; resolve() then picks exactly one.
type rawSSHCredentials struct {
	URL            string               `yaml:"url"`
	MaxConnections int                  `yaml:"maxConnections"`
	Keys           map[string]StaticKey `yaml:"keys"`
}

func (r rawSSHCredentials) resolve() (SSHCredentialsConfig, error) {
	hasService := r.URL != ""
	hasStatic := len(r.Keys) > 0
	switch {
	case hasService && hasStatic:
		return SSHCredentialsConfig{}, trace.BadParameter("sshCredentials: specify either url or keys, not both")
	case hasService:
		return SSHCredentialsConfig{SigningServiceURL: r.URL, MaxConnections: r.MaxConnections}, nil
	case hasStatic:
		return SSHCredentialsConfig{StaticKeys: r.Keys}, nil
	default:
		return SSHCredentialsConfig{}, trace.BadParameter("sshCredentials: neither url nor keys configured")
	}
}

// MultipartConfig is the storage `multipart` YAML subsection.
type MultipartConfig struct {
	UseSplit     bool   `yaml:"useSplit"`
	MaxPartSize  int64  `yaml:"maxPartSize"`
	ParallelRuns int    `yaml:"parallelRuns"`
	TmpFolder    string `yaml:"tmpFolder"`
}

// BucketLifecycleConfig is the storage `bucketLifecycleConfiguration`
// YAML subsection.
type BucketLifecycleConfig struct {
	Days int `yaml:"days"`
}

// StorageConfig is the normalized `storage` YAML section. It follows the
// broader DataOperation-style model: a storage record always carries its
// transfer-specific fields (multipart, lifecycle, tenant) rather than
// being a bare bucket descriptor.
type StorageConfig struct {
	Name                         string                `yaml:"name"`
	PrivateURL                   string                `yaml:"privateUrl"`
	PublicURL                    string                `yaml:"publicUrl"`
	AccessKeyID                  string                `yaml:"accessKeyId"`
	SecretAccessKey              string                `yaml:"secretAccessKey"`
	Region                       string                `yaml:"region"`
	TTL                          time.Duration         `yaml:"ttl"`
	Tenant                       string                `yaml:"tenant"`
	Multipart                    MultipartConfig       `yaml:"multipart"`
	BucketLifecycleConfiguration BucketLifecycleConfig `yaml:"bucketLifecycleConfiguration"`
	MaxOpsFileSize               int64                 `yaml:"maxOpsFileSize"`
	Probing                      *Probing              `yaml:"probing"`
}

// Probing is the `probing` YAML subsection shared by clusters and storage.
type Probing struct {
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

// rawHPCCluster matches one `clusters[]` YAML entry.
type rawHPCCluster struct {
	Name string `yaml:"name"`
	SSH  struct {
		Host       string `yaml:"host"`
		Port       int    `yaml:"port"`
		ProxyHost  string `yaml:"proxyHost"`
		ProxyPort  int    `yaml:"proxyPort"`
		MaxClients int    `yaml:"maxClients"`
		Timeout    struct {
			Connection       time.Duration `yaml:"connection"`
			Login            time.Duration `yaml:"login"`
			CommandExecution time.Duration `yaml:"commandExecution"`
			IdleTimeout      time.Duration `yaml:"idleTimeout"`
			KeepAlive        time.Duration `yaml:"keepAlive"`
		} `yaml:"timeout"`
	} `yaml:"ssh"`
	Scheduler struct {
		Type       string        `yaml:"type"`
		Version    string        `yaml:"version"`
		APIURL     string        `yaml:"apiUrl"`
		APIVersion string        `yaml:"apiVersion"`
		Timeout    time.Duration `yaml:"timeout"`
	} `yaml:"scheduler"`
	ServiceAccount struct {
		ClientID string `yaml:"clientId"`
		Secret   string `yaml:"secret"`
	} `yaml:"serviceAccount"`
	Probing     Probing `yaml:"probing"`
	FileSystems []struct {
		Path           string `yaml:"path"`
		DataType       string `yaml:"dataType"`
		DefaultWorkDir bool   `yaml:"defaultWorkDir"`
	} `yaml:"fileSystems"`
	DatatransferJobsDirectives []string `yaml:"datatransferJobsDirectives"`
}

func (r rawHPCCluster) normalize() (*model.Cluster, error) {
	if r.Name == "" {
		return nil, trace.BadParameter("cluster: name is required")
	}
	schedType := model.SchedulerType(r.Scheduler.Type)
	if schedType != model.SchedulerSlurm && schedType != model.SchedulerPBS {
		return nil, trace.BadParameter("cluster %q: scheduler.type must be slurm or pbs, got %q", r.Name, r.Scheduler.Type)
	}
	impl := model.SchedulerImplCLI
	if r.Scheduler.APIURL != "" {
		impl = model.SchedulerImplREST
	}
	if r.Probing.Interval <= 0 {
		return nil, trace.BadParameter("cluster %q: probing.interval must be > 0", r.Name)
	}

	defaultDirs := 0
	fileSystems := make([]model.FileSystem, 0, len(r.FileSystems))
	for _, fs := range r.FileSystems {
		if fs.DefaultWorkDir {
			defaultDirs++
		}
		fileSystems = append(fileSystems, model.FileSystem{
			Path:           fs.Path,
			DataType:       fs.DataType,
			DefaultWorkDir: fs.DefaultWorkDir,
		})
	}
	if defaultDirs != 1 {
		return nil, trace.BadParameter("cluster %q: exactly one fileSystems entry must set defaultWorkDir, found %d", r.Name, defaultDirs)
	}

	c := &model.Cluster{
		Name: r.Name,
		SSH: model.SSHConfig{
			Host:       r.SSH.Host,
			Port:       r.SSH.Port,
			ProxyHost:  r.SSH.ProxyHost,
			ProxyPort:  r.SSH.ProxyPort,
			MaxClients: orDefaultInt(r.SSH.MaxClients, DefaultMaxClients),
			Timeouts: model.SSHTimeouts{
				Connect:   orDefaultDur(r.SSH.Timeout.Connection, DefaultConnectTimeout),
				Login:     orDefaultDur(r.SSH.Timeout.Login, DefaultLoginTimeout),
				Execute:   orDefaultDur(r.SSH.Timeout.CommandExecution, DefaultExecuteTimeout),
				Idle:      orDefaultDur(r.SSH.Timeout.IdleTimeout, DefaultIdleTimeout),
				KeepAlive: orDefaultDur(r.SSH.Timeout.KeepAlive, DefaultKeepAlive),
			},
		},
		Scheduler: model.SchedulerConfig{
			Type:       schedType,
			Impl:       impl,
			Version:    r.Scheduler.Version,
			APIURL:     r.Scheduler.APIURL,
			APIVersion: r.Scheduler.APIVersion,
			Timeout:    orDefaultDur(r.Scheduler.Timeout, DefaultExecuteTimeout),
		},
		ServiceAccount: model.ServiceAccount{
			ClientID: r.ServiceAccount.ClientID,
			Secret:   r.ServiceAccount.Secret,
		},
		Probing: model.Probing{
			Interval: r.Probing.Interval,
			Timeout:  orDefaultDur(r.Probing.Timeout, DefaultExecuteTimeout),
		},
		FileSystems:                fileSystems,
		DatatransferJobsDirectives: r.DatatransferJobsDirectives,
	}
	if c.SSH.Timeouts.Idle <= c.SSH.Timeouts.Execute {
		return nil, trace.BadParameter("cluster %q: ssh.timeout.idleTimeout must be greater than commandExecution", r.Name)
	}
	return c, nil
}

func orDefaultInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func orDefaultDur(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

// WormholeConfig is the `dataTransfer.wormhole` YAML subsection: the one
// setting the wormhole job script needs beyond what's already on
// model.Cluster (work dir, sbatch directives).
type WormholeConfig struct {
	PyPIIndexURL string `yaml:"pypiIndexUrl"`
}

// StreamerConfig is the `dataTransfer.streamer` YAML subsection, mirroring
// upstream's StreamerDataTransfer constructor defaults (port_range
// (50000, 60000), wait_timeout 24h, inbound_transfer_limit 5GiB).
type StreamerConfig struct {
	PyPIIndexURL         string        `yaml:"pypiIndexUrl"`
	PortRangeStart       int           `yaml:"portRangeStart"`
	PortRangeEnd         int           `yaml:"portRangeEnd"`
	PublicIPs            []string      `yaml:"publicIps"`
	Host                 string        `yaml:"host"`
	WaitTimeout          time.Duration `yaml:"waitTimeout"`
	InboundTransferLimit int64         `yaml:"inboundTransferLimit"`
}

// DataTransferConfig is the `dataTransfer` YAML section shared by every
// cluster's wormhole/streamer transfer methods.
type DataTransferConfig struct {
	Wormhole WormholeConfig `yaml:"wormhole"`
	Streamer StreamerConfig `yaml:"streamer"`
}

func (c *DataTransferConfig) setDefaults() {
	if c.Streamer.PortRangeStart <= 0 {
		c.Streamer.PortRangeStart = 50000
	}
	if c.Streamer.PortRangeEnd <= 0 {
		c.Streamer.PortRangeEnd = 60000
	}
	if c.Streamer.WaitTimeout <= 0 {
		c.Streamer.WaitTimeout = 24 * time.Hour
	}
	if c.Streamer.InboundTransferLimit <= 0 {
		c.Streamer.InboundTransferLimit = 5 * 1024 * 1024 * 1024
	}
	if len(c.Streamer.PublicIPs) == 0 {
		c.Streamer.PublicIPs = []string{"localhost"}
	}
	if c.Streamer.Host == "" {
		c.Streamer.Host = "localhost"
	}
}

// Settings is the fully normalized, internally consistent configuration the
// rest of the gateway is built from.
type Settings struct {
	AppDebug       bool
	APIsRootPath   string
	Auth           AuthConfig
	SSHCredentials SSHCredentialsConfig
	Clusters       []*model.Cluster
	Storage        []StorageConfig
	DataTransfer   DataTransferConfig
}

// rawSettings is the top-level YAML document shape.
type rawSettings struct {
	AppDebug       bool               `yaml:"appDebug"`
	APIsRootPath   string             `yaml:"apisRootPath"`
	Auth           AuthConfig         `yaml:"auth"`
	SSHCredentials rawSSHCredentials  `yaml:"sshCredentials"`
	Clusters       yaml.Node          `yaml:"clusters"`
	Storage        []StorageConfig    `yaml:"storage"`
	DataTransfer   DataTransferConfig `yaml:"dataTransfer"`
}

// Load reads and normalizes the settings YAML file named by path.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, trace.ConvertSystemError(err)
	}
	return Parse(data, filepath.Dir(path))
}

// LoadFromEnv resolves the settings path from EnvConfigPath and loads it.
// A missing environment variable is a fatal ConfigError.
func LoadFromEnv() (*Settings, error) {
	for _, name := range EnvConfigPath {
		if path := os.Getenv(name); path != "" {
			return Load(path)
		}
	}
	return nil, trace.BadParameter("neither %s is set", strings.Join(EnvConfigPath, " nor "))
}

// Parse normalizes an in-memory settings document. baseDir is used to
// resolve a `clusters: "path:dir"` reference relative to the settings file.
func Parse(data []byte, baseDir string) (*Settings, error) {
	var raw rawSettings
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, trace.Wrap(err, "parsing settings yaml")
	}

	creds, err := raw.SSHCredentials.resolve()
	if err != nil {
		return nil, trace.Wrap(err)
	}
	for user, key := range creds.StaticKeys {
		resolved, err := resolveSecret(key.PrivateKey, baseDir)
		if err != nil {
			return nil, trace.Wrap(err, "sshCredentials.keys[%s].privateKey", user)
		}
		key.PrivateKey = resolved
		if key.PrivateKeyFile != "" {
			raw, err := os.ReadFile(resolvePath(key.PrivateKeyFile, baseDir))
			if err != nil {
				return nil, trace.ConvertSystemError(err)
			}
			key.PrivateKey = string(raw)
		}
		creds.StaticKeys[user] = key
	}

	clusters, err := resolveClusters(raw.Clusters, baseDir)
	if err != nil {
		return nil, trace.Wrap(err)
	}

	for i := range raw.Storage {
		s := &raw.Storage[i]
		if s.MaxOpsFileSize <= 0 {
			s.MaxOpsFileSize = DefaultMaxOpsFileSize
		}
		if s.Multipart.MaxPartSize <= 0 {
			s.Multipart.MaxPartSize = DefaultMaxPartSize
		}
	}

	raw.DataTransfer.setDefaults()

	return &Settings{
		AppDebug:       raw.AppDebug,
		APIsRootPath:   raw.APIsRootPath,
		Auth:           raw.Auth,
		SSHCredentials: creds,
		Clusters:       clusters,
		Storage:        raw.Storage,
		DataTransfer:   raw.DataTransfer,
	}, nil
}

// resolveClusters normalizes the dynamic `clusters` shape: either a literal
// list of HPCCluster documents, or a "path:/dir" string naming a directory
// to glob `*.yaml` from.
func resolveClusters(node yaml.Node, baseDir string) ([]*model.Cluster, error) {
	switch node.Kind {
	case 0:
		return nil, trace.BadParameter("clusters: missing")
	case yaml.ScalarNode:
		var pathSpec string
		if err := node.Decode(&pathSpec); err != nil {
			return nil, trace.Wrap(err)
		}
		dir, ok := strings.CutPrefix(pathSpec, "path:")
		if !ok {
			return nil, trace.BadParameter("clusters: scalar value must be of the form path:/dir, got %q", pathSpec)
		}
		return loadClusterDir(resolvePath(dir, baseDir))
	case yaml.SequenceNode:
		var raws []rawHPCCluster
		if err := node.Decode(&raws); err != nil {
			return nil, trace.Wrap(err)
		}
		names := map[string]bool{}
		clusters := make([]*model.Cluster, 0, len(raws))
		for _, r := range raws {
			c, err := r.normalize()
			if err != nil {
				return nil, trace.Wrap(err)
			}
			if names[c.Name] {
				return nil, trace.BadParameter("clusters: duplicate name %q", c.Name)
			}
			names[c.Name] = true
			clusters = append(clusters, c)
		}
		return clusters, nil
	default:
		return nil, trace.BadParameter("clusters: unsupported yaml shape")
	}
}

func loadClusterDir(dir string) ([]*model.Cluster, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, trace.Wrap(err)
	}
	names := map[string]bool{}
	clusters := make([]*model.Cluster, 0, len(matches))
	for _, m := range matches {
		data, err := os.ReadFile(m)
		if err != nil {
			return nil, trace.ConvertSystemError(err)
		}
		var r rawHPCCluster
		if err := yaml.Unmarshal(data, &r); err != nil {
			return nil, trace.Wrap(err, "parsing %s", m)
		}
		c, err := r.normalize()
		if err != nil {
			return nil, trace.Wrap(err, "in %s", m)
		}
		if names[c.Name] {
			return nil, trace.BadParameter("clusters: duplicate name %q (from %s)", c.Name, m)
		}
		names[c.Name] = true
		clusters = append(clusters, c)
	}
	return clusters, nil
}

func resolvePath(p, baseDir string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(baseDir, p)
}

// resolveSecret implements the `secret_file:/path` indirection: a string
// beginning with that prefix is replaced by the contents of the named
// file.
func resolveSecret(value, baseDir string) (string, error) {
	rest, ok := strings.CutPrefix(value, "secret_file:")
	if !ok {
		return value, nil
	}
	data, err := os.ReadFile(resolvePath(rest, baseDir))
	if err != nil {
		return "", trace.ConvertSystemError(err)
	}
	return strings.TrimSpace(string(data)), nil
}
