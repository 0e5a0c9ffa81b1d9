package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"gopkg.in/yaml.v3"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"trafego/trafegodns/types"
)

// ledgerYAML is the structure stored under the ConfigMap's data key.
type ledgerYAML struct {
	Records map[string]types.TrackedRecord `yaml:"records"`
}

// ConfigMapStore is a Store backed by a Kubernetes ConfigMap, for
// in-cluster deployments where no writable volume is available. The
// ledger is held in memory and written back on every mutation.
type ConfigMapStore struct {
	client    kubernetes.Interface
	namespace string
	name      string
	dataKey   string

	mu      sync.RWMutex
	entries map[string]types.TrackedRecord
}

// NewK8sClient creates a Kubernetes client using in-cluster
// configuration. It must be called from within a pod.
func NewK8sClient() (kubernetes.Interface, error) {
	cfg, err := rest.InClusterConfig()
	if err != nil {
		return nil, fmt.Errorf("in-cluster config: %w", err)
	}
	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("create clientset: %w", err)
	}
	return clientset, nil
}

// NewConfigMapStore loads the ledger from the named ConfigMap,
// creating the ConfigMap when it does not exist.
func NewConfigMapStore(ctx context.Context, client kubernetes.Interface, namespace, name, dataKey string) (*ConfigMapStore, error) {
	s := &ConfigMapStore{
		client:    client,
		namespace: namespace,
		name:      name,
		dataKey:   dataKey,
		entries:   make(map[string]types.TrackedRecord),
	}

	cm, err := client.CoreV1().ConfigMaps(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		if !apierrors.IsNotFound(err) {
			return nil, fmt.Errorf("get configmap: %w", err)
		}
		cm = &corev1.ConfigMap{
			ObjectMeta: metav1.ObjectMeta{Namespace: namespace, Name: name},
			Data:       map[string]string{dataKey: ""},
		}
		if _, err := client.CoreV1().ConfigMaps(namespace).Create(ctx, cm, metav1.CreateOptions{}); err != nil {
			return nil, fmt.Errorf("create configmap: %w", err)
		}
		slog.Info("created tracked-record configmap", "namespace", namespace, "name", name)
		return s, nil
	}

	raw := cm.Data[dataKey]
	if raw == "" {
		return s, nil
	}
	var ledger ledgerYAML
	if err := yaml.Unmarshal([]byte(raw), &ledger); err != nil {
		return nil, fmt.Errorf("unmarshal configmap ledger: %w", err)
	}
	if ledger.Records != nil {
		s.entries = ledger.Records
	}
	return s, nil
}

// Get returns the entry for key, or (nil, nil) when absent.
func (s *ConfigMapStore) Get(_ context.Context, key string) (*types.TrackedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.entries[key]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// Set stores the entry under key and writes the ledger back.
func (s *ConfigMapStore) Set(ctx context.Context, key string, rec types.TrackedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = rec
	return s.persistLocked(ctx)
}

// Delete removes the entry for key and writes the ledger back.
func (s *ConfigMapStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[key]; !ok {
		return nil
	}
	delete(s.entries, key)
	return s.persistLocked(ctx)
}

// ListAll returns every tracked entry.
func (s *ConfigMapStore) ListAll(_ context.Context) ([]types.TrackedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.TrackedRecord, 0, len(s.entries))
	for _, rec := range s.entries {
		out = append(out, rec)
	}
	return out, nil
}

// ListByProvider returns the tracked entries owned via one provider.
func (s *ConfigMapStore) ListByProvider(_ context.Context, providerID string) ([]types.TrackedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.TrackedRecord
	for _, rec := range s.entries {
		if rec.Provider == providerID {
			out = append(out, rec)
		}
	}
	return out, nil
}

// persistLocked writes the ledger into the ConfigMap. Caller holds the
// write lock.
func (s *ConfigMapStore) persistLocked(ctx context.Context) error {
	data, err := yaml.Marshal(&ledgerYAML{Records: s.entries})
	if err != nil {
		return fmt.Errorf("marshal ledger: %w", err)
	}

	cm, err := s.client.CoreV1().ConfigMaps(s.namespace).Get(ctx, s.name, metav1.GetOptions{})
	if err != nil {
		return fmt.Errorf("get configmap: %w", err)
	}
	if cm.Data == nil {
		cm.Data = make(map[string]string)
	}
	cm.Data[s.dataKey] = string(data)

	if _, err := s.client.CoreV1().ConfigMaps(s.namespace).Update(ctx, cm, metav1.UpdateOptions{}); err != nil {
		return fmt.Errorf("update configmap: %w", err)
	}
	return nil
}
