package cluster

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/time/rate"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// defaultStatusQPS caps status queries against the API server across all
// handles of one client, independent of how often monitors poll.
const defaultStatusQPS = 5

// KubernetesConfig holds configuration for the Kubernetes backend.
type KubernetesConfig struct {
	// Namespace jobs are created in when the descriptor names none.
	Namespace string
	// ServiceAccount for job pods when the descriptor names none.
	ServiceAccount string
	// StatusQPS overrides defaultStatusQPS when positive.
	StatusQPS float64
}

// KubernetesClient implements Client using Kubernetes Jobs.
type KubernetesClient struct {
	clientset kubernetes.Interface
	config    KubernetesConfig
	limiter   *rate.Limiter
}

// kubernetesHandle represents a submitted Kubernetes Job.
type kubernetesHandle struct {
	clientset kubernetes.Interface
	limiter   *rate.Limiter
	namespace string
	jobName   string
}

func homeDir() string {
	if h := os.Getenv("HOME"); h != "" {
		return h
	}
	return os.Getenv("USERPROFILE") // Windows
}

// NewKubernetesClient creates a Kubernetes-backed client. Tries in-cluster
// configuration first, falls back to kubeconfig for local development.
func NewKubernetesClient(cfg KubernetesConfig) (*KubernetesClient, error) {
	config, err := rest.InClusterConfig()
	if err != nil {
		log.Printf("In-cluster config not available, trying kubeconfig: %v", err)
		kubeconfig := filepath.Join(homeDir(), ".kube", "config")
		config, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
		if err != nil {
			return nil, fmt.Errorf("failed to build kubernetes config: %w", err)
		}
		log.Printf("Using kubeconfig: %s", kubeconfig)
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes clientset: %w", err)
	}

	if cfg.Namespace == "" {
		cfg.Namespace = "default"
	}
	qps := cfg.StatusQPS
	if qps <= 0 {
		qps = defaultStatusQPS
	}

	return &KubernetesClient{
		clientset: clientset,
		config:    cfg,
		limiter:   rate.NewLimiter(rate.Limit(qps), 1),
	}, nil
}

func (c *KubernetesClient) namespaceFor(desc Descriptor) string {
	if desc.Namespace != "" {
		return desc.Namespace
	}
	return c.config.Namespace
}

// Submit creates a Kubernetes Job from the descriptor. The job's backoff
// limit comes from desc.Retries, which the launcher pins to zero: attempts
// are driven from the monitoring side, never by the scheduler.
func (c *KubernetesClient) Submit(ctx context.Context, desc Descriptor) (JobHandle, error) {
	namespace := c.namespaceFor(desc)

	envVars := make([]corev1.EnvVar, 0, len(desc.Env))
	for _, e := range desc.Env {
		envVars = append(envVars, corev1.EnvVar{Name: e.Name, Value: e.Value})
	}

	limits := corev1.ResourceList{}
	if desc.CPU != "" {
		q, err := resource.ParseQuantity(desc.CPU)
		if err != nil {
			return nil, fmt.Errorf("invalid cpu quantity %q: %w", desc.CPU, err)
		}
		limits[corev1.ResourceCPU] = q
	}
	if desc.Memory != "" {
		q, err := resource.ParseQuantity(desc.Memory)
		if err != nil {
			return nil, fmt.Errorf("invalid memory quantity %q: %w", desc.Memory, err)
		}
		limits[corev1.ResourceMemory] = q
	}
	if desc.GPU > 0 {
		limits["nvidia.com/gpu"] = resource.MustParse(strconv.Itoa(desc.GPU))
	}

	backoffLimit := int32(desc.Retries)
	job := &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:      desc.Name,
			Namespace: namespace,
			Labels:    desc.Labels,
		},
		Spec: batchv1.JobSpec{
			BackoffLimit: &backoffLimit,
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Labels: desc.Labels,
				},
				Spec: corev1.PodSpec{
					RestartPolicy: corev1.RestartPolicyNever,
					Containers: []corev1.Container{
						{
							Name:      "task",
							Image:     desc.Image,
							Command:   desc.Command,
							Env:       envVars,
							Resources: corev1.ResourceRequirements{Limits: limits},
						},
					},
				},
			},
		},
	}

	if desc.TimeLimit > 0 {
		deadline := int64(desc.TimeLimit.Seconds())
		job.Spec.ActiveDeadlineSeconds = &deadline
	}
	serviceAccount := desc.ServiceAccount
	if serviceAccount == "" {
		serviceAccount = c.config.ServiceAccount
	}
	if serviceAccount != "" {
		job.Spec.Template.Spec.ServiceAccountName = serviceAccount
	}

	createdJob, err := c.clientset.BatchV1().Jobs(namespace).Create(ctx, job, metav1.CreateOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes job: %w", err)
	}

	log.Printf("Created Kubernetes Job %s in namespace %s", createdJob.Name, namespace)

	return &kubernetesHandle{
		clientset: c.clientset,
		limiter:   c.limiter,
		namespace: namespace,
		jobName:   createdJob.Name,
	}, nil
}

// Lookup returns a handle for an existing job.
func (c *KubernetesClient) Lookup(ctx context.Context, name string) (JobHandle, error) {
	job, err := c.clientset.BatchV1().Jobs(c.config.Namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to look up job %s: %w", name, err)
	}
	return &kubernetesHandle{
		clientset: c.clientset,
		limiter:   c.limiter,
		namespace: job.Namespace,
		jobName:   job.Name,
	}, nil
}

func (h *kubernetesHandle) ID() string {
	return h.jobName
}

// Status observes the job's pod. Before the scheduler has created a pod the
// job reports as pending unless the job itself already carries a failure
// condition (a time limit can kill a job whose pod was reclaimed).
func (h *kubernetesHandle) Status(ctx context.Context) (Snapshot, error) {
	if h.limiter != nil {
		if err := h.limiter.Wait(ctx); err != nil {
			return Snapshot{}, err
		}
	}

	pods, err := h.clientset.CoreV1().Pods(h.namespace).List(ctx, metav1.ListOptions{
		LabelSelector: fmt.Sprintf("job-name=%s", h.jobName),
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to list pods for job %s: %w", h.jobName, err)
	}
	if len(pods.Items) == 0 {
		return h.jobOnlyStatus(ctx)
	}

	pod := pods.Items[0]
	switch pod.Status.Phase {
	case corev1.PodSucceeded:
		return Snapshot{
			Phase:    string(pod.Status.Phase),
			Done:     true,
			ExitCode: terminatedExitCode(&pod, 0),
		}, nil
	case corev1.PodFailed:
		return Snapshot{
			Phase:    string(pod.Status.Phase),
			Done:     true,
			Failed:   true,
			Reason:   podFailureReason(&pod),
			ExitCode: terminatedExitCode(&pod, -1),
		}, nil
	case corev1.PodRunning:
		return Snapshot{Phase: string(pod.Status.Phase), Running: true}, nil
	default:
		return Snapshot{Phase: string(pod.Status.Phase)}, nil
	}
}

func (h *kubernetesHandle) jobOnlyStatus(ctx context.Context) (Snapshot, error) {
	job, err := h.clientset.BatchV1().Jobs(h.namespace).Get(ctx, h.jobName, metav1.GetOptions{})
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to get job %s: %w", h.jobName, err)
	}
	for _, cond := range job.Status.Conditions {
		if cond.Type == batchv1.JobFailed && cond.Status == corev1.ConditionTrue {
			reason := cond.Reason
			if reason == "" {
				reason = cond.Message
			}
			return Snapshot{
				Phase:    "Failed",
				Done:     true,
				Failed:   true,
				Reason:   reason,
				ExitCode: -1,
			}, nil
		}
	}
	return Snapshot{Phase: "Pending"}, nil
}

// Cancel deletes the job with foreground propagation to clean up pods.
func (h *kubernetesHandle) Cancel(ctx context.Context) error {
	propagation := metav1.DeletePropagationForeground
	err := h.clientset.BatchV1().Jobs(h.namespace).Delete(ctx, h.jobName, metav1.DeleteOptions{
		PropagationPolicy: &propagation,
	})
	if err != nil {
		return fmt.Errorf("failed to delete job %s: %w", h.jobName, err)
	}
	log.Printf("Deleted Kubernetes Job %s", h.jobName)
	return nil
}

func terminatedExitCode(pod *corev1.Pod, fallback int) int {
	if len(pod.Status.ContainerStatuses) > 0 {
		if t := pod.Status.ContainerStatuses[0].State.Terminated; t != nil {
			return int(t.ExitCode)
		}
	}
	return fallback
}

func podFailureReason(pod *corev1.Pod) string {
	if len(pod.Status.ContainerStatuses) > 0 {
		if t := pod.Status.ContainerStatuses[0].State.Terminated; t != nil {
			if t.Reason != "" {
				return t.Reason
			}
			if t.Message != "" {
				return t.Message
			}
		}
	}
	return pod.Status.Reason
}
