package indexer

import (
	"encoding/json"
	"fmt"
	"strings"

	"code-indexer/internal/model"
	pkgErrors "code-indexer/pkg/errors"
	"code-indexer/pkg/utils"
)

// connectionPayload -connection 参数
type connectionPayload struct {
	URL       []string `json:"url"`
	User      string   `json:"user,omitempty"`
	Password  string   `json:"password,omitempty"`
	APIKey    string   `json:"api_key,omitempty"`
	AWS       bool     `json:"aws,omitempty"`
	AWSRegion string   `json:"aws_region,omitempty"`
	AWSAccess string   `json:"aws_access_key,omitempty"`
	AWSSecret string   `json:"aws_secret_access_key,omitempty"`
}

type credentials struct {
	User      string `json:"user"`
	Password  string `json:"password"`
	APIKey    string `json:"api_key"`
	AWSAccess string `json:"aws_access_key"`
	AWSSecret string `json:"aws_secret_access_key"`
}

// baseOptions index 和 delete 共用的 -options 字段
type baseOptions struct {
	ProjectID       int64  `json:"project_id"`
	PartitionName   string `json:"partition_name"`
	PartitionNumber int    `json:"partition_number"`
	Timeout         string `json:"timeout"`
	Operation       string `json:"operation"`
}

type gitalyConfig struct {
	Storage      string `json:"storage"`
	RelativePath string `json:"relative_path"`
	ProjectPath  string `json:"project_path"`
	Address      string `json:"address"`
	Token        string `json:"token"`
}

type indexOptions struct {
	baseOptions
	FromSHA      string       `json:"from_sha"`
	ToSHA        string       `json:"to_sha"`
	ForceReindex bool         `json:"force_reindex"`
	GitalyConfig gitalyConfig `json:"gitaly_config"`
}

// Partition 按 project id 路由到固定 shard
func Partition(prefix string, projectID int64, count int) (string, int) {
	if count <= 0 {
		count = 1
	}
	number := int(projectID % int64(count))
	if prefix == "" {
		prefix = "code"
	}
	return fmt.Sprintf("%s_p%d", prefix, number), number
}

// buildConnectionPayload 归一化 url 并合并解密后的凭证
func buildConnectionPayload(conn *model.Connection, aesKey string) (*connectionPayload, error) {
	payload := &connectionPayload{}

	raw, ok := conn.Options["url"]
	if !ok {
		return nil, pkgErrors.NewConfigurationError("connection %s has no url", conn.Name)
	}
	urls, err := normalizeURLs(raw)
	if err != nil {
		return nil, pkgErrors.NewConfigurationError("connection %s: %v", conn.Name, err)
	}
	payload.URL = urls

	if region, ok := conn.Options["aws_region"].(string); ok && region != "" {
		payload.AWS = true
		payload.AWSRegion = region
	}

	if conn.CredentialsEnc != "" {
		plain, err := utils.DecryptSecret(aesKey, conn.CredentialsEnc)
		if err != nil {
			return nil, pkgErrors.NewConfigurationError("decrypt credentials of connection %s: %v", conn.Name, err)
		}
		var creds credentials
		if err := json.Unmarshal([]byte(plain), &creds); err != nil {
			return nil, pkgErrors.NewConfigurationError("parse credentials of connection %s: %v", conn.Name, err)
		}
		payload.User = creds.User
		payload.Password = creds.Password
		payload.APIKey = creds.APIKey
		payload.AWSAccess = creds.AWSAccess
		payload.AWSSecret = creds.AWSSecret
	}
	return payload, nil
}

// normalizeURLs 支持字符串, 字符串列表, 以及 {scheme, host, port, path} 结构
func normalizeURLs(raw interface{}) ([]string, error) {
	var items []interface{}
	switch v := raw.(type) {
	case string:
		items = []interface{}{v}
	case []interface{}:
		items = v
	case []string:
		for _, s := range v {
			items = append(items, s)
		}
	default:
		return nil, fmt.Errorf("unsupported url type %T", raw)
	}

	urls := make([]string, 0, len(items))
	for _, item := range items {
		switch u := item.(type) {
		case string:
			if u = strings.TrimSpace(u); u != "" {
				urls = append(urls, strings.TrimSuffix(u, "/"))
			}
		case map[string]interface{}:
			s, err := structuredURL(u)
			if err != nil {
				return nil, err
			}
			urls = append(urls, s)
		default:
			return nil, fmt.Errorf("unsupported url entry %T", item)
		}
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("url list is empty")
	}
	return urls, nil
}

func structuredURL(u map[string]interface{}) (string, error) {
	host, _ := u["host"].(string)
	if host == "" {
		return "", fmt.Errorf("url entry without host")
	}
	scheme, _ := u["scheme"].(string)
	if scheme == "" {
		scheme = "http"
	}

	var b strings.Builder
	b.WriteString(scheme)
	b.WriteString("://")
	b.WriteString(host)
	switch port := u["port"].(type) {
	case float64:
		fmt.Fprintf(&b, ":%d", int(port))
	case int:
		fmt.Fprintf(&b, ":%d", port)
	case string:
		if port != "" {
			b.WriteString(":" + port)
		}
	}
	if path, _ := u["path"].(string); path != "" && path != "/" {
		b.WriteString("/" + strings.Trim(path, "/"))
	}
	return b.String(), nil
}

func marshalArgs(adapter string, conn *connectionPayload, options interface{}) ([]string, error) {
	connJSON, err := json.Marshal(conn)
	if err != nil {
		return nil, fmt.Errorf("marshal connection: %w", err)
	}
	optJSON, err := json.Marshal(options)
	if err != nil {
		return nil, fmt.Errorf("marshal options: %w", err)
	}
	return []string{"-adapter", adapter, "-connection", string(connJSON), "-options", string(optJSON)}, nil
}
