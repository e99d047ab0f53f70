package state

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	typedcorev1 "k8s.io/client-go/kubernetes/typed/core/v1"
	"k8s.io/client-go/rest"
)

const (
	appLabel       = "app"
	appName        = "klondike"
	componentLabel = "component"
	jobAnnotation  = "klondike/job-id"
	expiresKey     = "expires"
)

const maxNameLength = 253

var (
	invalidNameChars = regexp.MustCompile(`[^a-z0-9.-]+`)
	separatorRuns    = regexp.MustCompile(`[.-]{2,}`)
)

// KubernetesManager implements the Manager interface using ConfigMaps. Each
// job is stored in klondike-state-<job>-<hash> and locked with
// klondike-lock-<job>-<hash>, where hash is taken from the exact job ID.
type KubernetesManager struct {
	client    kubernetes.Interface
	namespace string
	now       func() time.Time
}

// NewInClusterManager creates a manager from the pod's service account
func NewInClusterManager(namespace string) (*KubernetesManager, error) {
	config, err := rest.InClusterConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to get in-cluster config: %w", err)
	}

	client, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes client: %w", err)
	}
	return NewKubernetesManager(client, namespace), nil
}

// NewKubernetesManager creates a manager using client
func NewKubernetesManager(client kubernetes.Interface, namespace string) *KubernetesManager {
	if namespace == "" {
		namespace = "default"
	}
	return &KubernetesManager{client: client, namespace: namespace, now: time.Now}
}

// configMapName maps a job ID onto a valid object name. The readable
// part is lossy, the hash suffix keeps distinct IDs apart.
func configMapName(kind, jobID string) string {
	sum := sha256.Sum256([]byte(jobID))
	suffix := hex.EncodeToString(sum[:4])
	prefix := "klondike-" + kind + "-"

	id := invalidNameChars.ReplaceAllString(strings.ToLower(jobID), "-")
	id = separatorRuns.ReplaceAllString(id, "-")
	if n := maxNameLength - len(prefix) - len(suffix) - 1; len(id) > n {
		id = id[:n]
	}
	id = strings.Trim(id, "-.")
	if id == "" {
		return prefix + suffix
	}
	return prefix + id + "-" + suffix
}

// owned rejects a ConfigMap recorded for a different job ID
func owned(cm *corev1.ConfigMap, jobID string) error {
	if got := cm.Annotations[jobAnnotation]; got != jobID {
		return fmt.Errorf("ConfigMap %s belongs to job %q, not %q", cm.Name, got, jobID)
	}
	return nil
}

func (k *KubernetesManager) configMaps() typedcorev1.ConfigMapInterface {
	return k.client.CoreV1().ConfigMaps(k.namespace)
}

func (k *KubernetesManager) stateConfigMap(s *State) (*corev1.ConfigMap, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal state: %w", err)
	}
	return &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Name:        configMapName("state", s.JobID),
			Labels:      map[string]string{appLabel: appName, componentLabel: "state"},
			Annotations: map[string]string{jobAnnotation: s.JobID},
		},
		Data: map[string]string{"state": string(data)},
	}, nil
}

func decodeState(cm *corev1.ConfigMap) (*State, error) {
	var s State
	if err := json.Unmarshal([]byte(cm.Data["state"]), &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state from %s: %w", cm.Name, err)
	}
	return &s, nil
}

func (k *KubernetesManager) GetState(ctx context.Context, jobID string) (*State, error) {
	cm, err := k.configMaps().Get(ctx, configMapName("state", jobID), metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, jobID)
		}
		return nil, fmt.Errorf("failed to get ConfigMap: %w", err)
	}
	if err := owned(cm, jobID); err != nil {
		return nil, err
	}
	return decodeState(cm)
}

func (k *KubernetesManager) CreateState(ctx context.Context, state *State) error {
	if err := validateJobID(state.JobID); err != nil {
		return err
	}
	cm, err := k.stateConfigMap(state)
	if err != nil {
		return err
	}
	if _, err := k.configMaps().Create(ctx, cm, metav1.CreateOptions{}); err != nil {
		if apierrors.IsAlreadyExists(err) {
			return fmt.Errorf("%w: %s", ErrExists, state.JobID)
		}
		return fmt.Errorf("failed to create ConfigMap: %w", err)
	}
	return nil
}

func (k *KubernetesManager) UpdateState(ctx context.Context, state *State) error {
	current, err := k.configMaps().Get(ctx, configMapName("state", state.JobID), metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, state.JobID)
		}
		return fmt.Errorf("failed to get ConfigMap: %w", err)
	}
	if err := owned(current, state.JobID); err != nil {
		return err
	}

	s := state.copy()
	s.LastUpdated = k.now()
	cm, err := k.stateConfigMap(s)
	if err != nil {
		return err
	}
	cm.ResourceVersion = current.ResourceVersion
	if _, err := k.configMaps().Update(ctx, cm, metav1.UpdateOptions{}); err != nil {
		return fmt.Errorf("failed to update ConfigMap: %w", err)
	}
	return nil
}

func (k *KubernetesManager) DeleteState(ctx context.Context, jobID string) error {
	err := k.configMaps().Delete(ctx, configMapName("state", jobID), metav1.DeleteOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, jobID)
		}
		return fmt.Errorf("failed to delete ConfigMap: %w", err)
	}
	return nil
}

func (k *KubernetesManager) ListStates(ctx context.Context) ([]*State, error) {
	list, err := k.configMaps().List(ctx, metav1.ListOptions{
		LabelSelector: appLabel + "=" + appName + "," + componentLabel + "=state",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list ConfigMaps: %w", err)
	}

	var states []*State
	for i := range list.Items {
		s, err := decodeState(&list.Items[i])
		if err != nil {
			continue // not ours to fail on
		}
		states = append(states, s)
	}
	sort.Slice(states, func(i, j int) bool { return states[i].JobID < states[j].JobID })
	return states, nil
}

func (k *KubernetesManager) LockState(ctx context.Context, jobID string, ttl time.Duration) (bool, error) {
	if err := validateJobID(jobID); err != nil {
		return false, err
	}
	now := k.now()
	lock := &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Name:   configMapName("lock", jobID),
			Labels: map[string]string{appLabel: appName, componentLabel: "lock"},
			Annotations: map[string]string{
				jobAnnotation: jobID,
				expiresKey:    now.Add(ttl).Format(time.RFC3339Nano),
			},
		},
		Data: map[string]string{"locked_at": now.Format(time.RFC3339Nano)},
	}

	_, err := k.configMaps().Create(ctx, lock, metav1.CreateOptions{})
	if err == nil {
		return true, nil
	}
	if !apierrors.IsAlreadyExists(err) {
		return false, fmt.Errorf("failed to create lock: %w", err)
	}

	existing, err := k.configMaps().Get(ctx, lock.Name, metav1.GetOptions{})
	if err != nil {
		return false, fmt.Errorf("failed to get lock: %w", err)
	}
	if err := owned(existing, jobID); err != nil {
		return false, err
	}
	expires, err := time.Parse(time.RFC3339Nano, existing.Annotations[expiresKey])
	if err == nil && expires.After(now) {
		return false, nil
	}

	// Take over the expired lock. A conflict means another holder won.
	lock.ResourceVersion = existing.ResourceVersion
	if _, err := k.configMaps().Update(ctx, lock, metav1.UpdateOptions{}); err != nil {
		if apierrors.IsConflict(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to update lock: %w", err)
	}
	return true, nil
}

func (k *KubernetesManager) RefreshLock(ctx context.Context, jobID string, ttl time.Duration) error {
	if err := validateJobID(jobID); err != nil {
		return err
	}
	lock, err := k.configMaps().Get(ctx, configMapName("lock", jobID), metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return fmt.Errorf("%w: %s", ErrNotLocked, jobID)
		}
		return fmt.Errorf("failed to get lock: %w", err)
	}
	if err := owned(lock, jobID); err != nil {
		return err
	}

	lock.Annotations[expiresKey] = k.now().Add(ttl).Format(time.RFC3339Nano)
	if _, err := k.configMaps().Update(ctx, lock, metav1.UpdateOptions{}); err != nil {
		return fmt.Errorf("failed to refresh lock: %w", err)
	}
	return nil
}

func (k *KubernetesManager) UnlockState(ctx context.Context, jobID string) error {
	err := k.configMaps().Delete(ctx, configMapName("lock", jobID), metav1.DeleteOptions{})
	if err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("failed to delete lock: %w", err)
	}
	return nil
}
