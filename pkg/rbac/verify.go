// Package rbac verifies the running identity holds every permission
// gpu-dibs needs before the server starts taking reservations.
package rbac

import (
	"context"
	"fmt"
	"strings"

	authv1 "k8s.io/api/authorization/v1"
	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	apiextensionsclientset "k8s.io/apiextensions-apiserver/pkg/client/clientset/clientset"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
)

// SessionProfileCRDName is the full name of the CRD the preflight looks up.
const SessionProfileCRDName = "sessionprofiles.dibs.sir-alfred.io"

// RequiredPermission represents a permission that needs to be verified
type RequiredPermission struct {
	APIGroup  string
	Resource  string
	Verb      string
	Namespace string // empty for cluster-scoped
}

// GetRequiredPermissions returns the list of permissions required by gpu-dibs
func GetRequiredPermissions(namespace string) []RequiredPermission {
	return []RequiredPermission{
		// Cluster-scoped permissions (CRDs)
		{APIGroup: "apiextensions.k8s.io", Resource: "customresourcedefinitions", Verb: "get", Namespace: ""},
		{APIGroup: "apiextensions.k8s.io", Resource: "customresourcedefinitions", Verb: "list", Namespace: ""},

		// Cluster-scoped permissions (SessionProfiles CRD)
		{APIGroup: "dibs.sir-alfred.io", Resource: "sessionprofiles", Verb: "get", Namespace: ""},
		{APIGroup: "dibs.sir-alfred.io", Resource: "sessionprofiles", Verb: "list", Namespace: ""},

		// Cluster-scoped permissions (GPU node discovery)
		{APIGroup: "", Resource: "nodes", Verb: "get", Namespace: ""},
		{APIGroup: "", Resource: "nodes", Verb: "list", Namespace: ""},

		// Namespace-scoped permissions (session pods)
		{APIGroup: "", Resource: "pods", Verb: "get", Namespace: namespace},
		{APIGroup: "", Resource: "pods", Verb: "list", Namespace: namespace},
		{APIGroup: "", Resource: "pods", Verb: "create", Namespace: namespace},
		{APIGroup: "", Resource: "pods", Verb: "delete", Namespace: namespace},
		{APIGroup: "", Resource: "pods", Verb: "patch", Namespace: namespace},
	}
}

// VerifyPermissions checks if the current identity has all required
// permissions and that the SessionProfile CRD is installed.
func VerifyPermissions(ctx context.Context, config *rest.Config, namespace string) error {
	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return fmt.Errorf("failed to create kubernetes client: %w", err)
	}

	if err := VerifyCRDExists(ctx, config); err != nil {
		return err
	}

	permissions := GetRequiredPermissions(namespace)
	var missingPermissions []string

	for _, perm := range permissions {
		allowed, err := CheckPermission(ctx, clientset, perm)
		if err != nil {
			return fmt.Errorf("failed to check permission %s/%s:%s: %w", perm.APIGroup, perm.Resource, perm.Verb, err)
		}

		if !allowed {
			scope := "cluster-scoped"
			if perm.Namespace != "" {
				scope = fmt.Sprintf("namespace=%s", perm.Namespace)
			}
			missingPermissions = append(missingPermissions, fmt.Sprintf("  - %s %s.%s (%s)", perm.Verb, perm.Resource, perm.APIGroup, scope))
		}
	}

	if len(missingPermissions) > 0 {
		return fmt.Errorf("missing required RBAC permissions:\n%s\n\nPlease ensure the ServiceAccount has the required permissions as defined in manifests/ci/rbac.yaml",
			strings.Join(missingPermissions, "\n"))
	}

	return nil
}

// VerifyCRDExists checks if the SessionProfile CRD is installed and established
func VerifyCRDExists(ctx context.Context, config *rest.Config) error {
	apiextensionsClient, err := apiextensionsclientset.NewForConfig(config)
	if err != nil {
		return fmt.Errorf("failed to create apiextensions client: %w", err)
	}

	crd, err := apiextensionsClient.ApiextensionsV1().CustomResourceDefinitions().Get(ctx, SessionProfileCRDName, metav1.GetOptions{})
	if err != nil {
		return fmt.Errorf("SessionProfile CRD not found: %w\n\nPlease install the CRD using: kubectl apply -f manifests/crds/sessionprofile.yaml", err)
	}

	for _, condition := range crd.Status.Conditions {
		if condition.Type == apiextensionsv1.Established && condition.Status == apiextensionsv1.ConditionTrue {
			return nil
		}
	}

	return fmt.Errorf("SessionProfile CRD exists but is not established\n\nPlease wait for the CRD to be fully initialized")
}

// CheckPermission verifies if a specific permission is granted
func CheckPermission(ctx context.Context, clientset kubernetes.Interface, perm RequiredPermission) (bool, error) {
	sar := &authv1.SelfSubjectAccessReview{
		Spec: authv1.SelfSubjectAccessReviewSpec{
			ResourceAttributes: &authv1.ResourceAttributes{
				Verb:      perm.Verb,
				Group:     perm.APIGroup,
				Resource:  perm.Resource,
				Namespace: perm.Namespace,
			},
		},
	}

	result, err := clientset.AuthorizationV1().SelfSubjectAccessReviews().Create(ctx, sar, metav1.CreateOptions{})
	if err != nil {
		return false, err
	}

	return result.Status.Allowed, nil
}
