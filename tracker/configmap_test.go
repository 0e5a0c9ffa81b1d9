package tracker

import (
	"context"
	"testing"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

func TestConfigMapStore_CreatesMissingConfigMap(t *testing.T) {
	client := fake.NewSimpleClientset()
	ctx := context.Background()

	s, err := NewConfigMapStore(ctx, client, "dns", "trafegodns-tracked", "records.yaml")
	if err != nil {
		t.Fatalf("NewConfigMapStore() error = %v", err)
	}

	cm, err := client.CoreV1().ConfigMaps("dns").Get(ctx, "trafegodns-tracked", metav1.GetOptions{})
	if err != nil {
		t.Fatalf("ConfigMap not created: %v", err)
	}
	if _, ok := cm.Data["records.yaml"]; !ok {
		t.Errorf("ConfigMap data = %v, want records.yaml key", cm.Data)
	}

	all, err := s.ListAll(ctx)
	if err != nil || len(all) != 0 {
		t.Errorf("ListAll() = %v, %v; want empty", all, err)
	}
}

func TestConfigMapStore_PersistsAndReloads(t *testing.T) {
	client := fake.NewSimpleClientset()
	ctx := context.Background()

	s, err := NewConfigMapStore(ctx, client, "dns", "trafegodns-tracked", "records.yaml")
	if err != nil {
		t.Fatalf("NewConfigMapStore() error = %v", err)
	}

	entry := trackedA("cf", "www.example.com")
	entry.Metadata = map[string]string{"ttl": "300"}
	key := storeKey("cf", entry.RecordKey)
	if err := s.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	// A second store over the same client simulates a restart.
	s2, err := NewConfigMapStore(ctx, client, "dns", "trafegodns-tracked", "records.yaml")
	if err != nil {
		t.Fatalf("reload error = %v", err)
	}
	got, err := s2.Get(ctx, key)
	if err != nil || got == nil {
		t.Fatalf("Get() after reload = %v, %v", got, err)
	}
	if got.Name != "www.example.com" || got.Metadata["ttl"] != "300" {
		t.Errorf("entry = %+v", got)
	}

	if err := s2.Delete(ctx, key); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	s3, err := NewConfigMapStore(ctx, client, "dns", "trafegodns-tracked", "records.yaml")
	if err != nil {
		t.Fatalf("reload error = %v", err)
	}
	if got, _ := s3.Get(ctx, key); got != nil {
		t.Errorf("deleted entry resurrected: %+v", got)
	}
}

func TestConfigMapStore_LoadsExistingLedger(t *testing.T) {
	existing := &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{Namespace: "dns", Name: "trafegodns-tracked"},
		Data: map[string]string{
			"records.yaml": `records:
  cf/id-www.example.com:
    provider: cf
    recordKey: id-www.example.com
    name: www.example.com
    type: A
`,
		},
	}
	client := fake.NewSimpleClientset(existing)

	s, err := NewConfigMapStore(context.Background(), client, "dns", "trafegodns-tracked", "records.yaml")
	if err != nil {
		t.Fatalf("NewConfigMapStore() error = %v", err)
	}
	got, err := s.Get(context.Background(), "cf/id-www.example.com")
	if err != nil || got == nil || got.Provider != "cf" {
		t.Errorf("Get() = %+v, %v", got, err)
	}
}

func TestConfigMapStore_CorruptLedgerFails(t *testing.T) {
	existing := &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{Namespace: "dns", Name: "trafegodns-tracked"},
		Data:       map[string]string{"records.yaml": "not: [valid: yaml: {{"},
	}
	client := fake.NewSimpleClientset(existing)

	if _, err := NewConfigMapStore(context.Background(), client, "dns", "trafegodns-tracked", "records.yaml"); err == nil {
		t.Error("NewConfigMapStore() on corrupt ledger should fail")
	}
}
