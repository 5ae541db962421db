package etcdhelper

import (
	"context"
	"fmt"
	"runtime"
	"testing"
	"time"

	etcd "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/namespace"
	"go.etcd.io/etcd/tests/v3/integration"

	"github.com/keboola/price-tracker/internal/pkg/env"
	"github.com/keboola/price-tracker/internal/pkg/idgenerator"
)

// ClusterForTest starts an in-process single node etcd cluster.
// The test is skipped if UNIT_ETCD_ENABLED=false or the OS is not Linux.
func ClusterForTest(t *testing.T) *integration.ClusterV3 {
	t.Helper()

	if env.FromOs().Get("UNIT_ETCD_ENABLED") == "false" {
		t.Skipf("etcd test is disabled by UNIT_ETCD_ENABLED=false")
	}
	if runtime.GOOS != "linux" {
		t.Skipf(`etcd is tested only on Linux`)
	}

	integration.BeforeTestExternal(t)
	cluster := integration.NewClusterV3(t, &integration.ClusterConfig{Size: 1, UseBridge: true})
	t.Cleanup(func() {
		cluster.Terminate(t)
	})
	cluster.WaitLeader(t)
	return cluster
}

// Endpoint returns the client endpoint of the first cluster member.
func Endpoint(cluster *integration.ClusterV3) string {
	return cluster.Client(0).Endpoints()[0]
}

// NamespacedClientForTest creates a new client of the cluster, all keys are prefixed by a random namespace.
// The namespace is deleted and the client is closed after the test.
func NamespacedClientForTest(t *testing.T, cluster *integration.ClusterV3) (*etcd.Client, string) {
	t.Helper()

	client, err := etcd.New(etcd.Config{
		Endpoints:   []string{Endpoint(cluster)},
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("cannot create etcd client: %s", err)
	}

	prefix := fmt.Sprintf("unit-%s/", idgenerator.EtcdNamespaceForTest())
	client.KV = namespace.NewKV(client.KV, prefix)
	client.Lease = namespace.NewLease(client.Lease, prefix)
	client.Watcher = namespace.NewWatcher(client.Watcher, prefix)

	t.Cleanup(func() {
		// The client may be already closed by the test, so the cluster client is used
		if _, err := cluster.Client(0).Delete(context.Background(), prefix, etcd.WithPrefix()); err != nil {
			t.Errorf(`cannot clear etcd namespace "%s" after test: %s`, prefix, err)
		}
		_ = client.Close()
	})

	return client, prefix
}
