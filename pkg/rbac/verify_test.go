package rbac_test

import (
	"context"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	authv1 "k8s.io/api/authorization/v1"
	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"
	"k8s.io/client-go/rest"
	k8stesting "k8s.io/client-go/testing"

	"github.com/efortin/gpu-dibs/pkg/rbac"
)

func TestRBAC(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "RBAC Verification Suite")
}

var _ = Describe("RBAC Verification", func() {
	Describe("GetRequiredPermissions", func() {
		It("should return non-empty permission list", func() {
			permissions := rbac.GetRequiredPermissions("gpu-lab")
			Expect(permissions).NotTo(BeEmpty())
		})

		It("should include cluster-scoped CRD permissions", func() {
			permissions := rbac.GetRequiredPermissions("gpu-lab")

			var hasCRDGet, hasCRDList bool
			for _, perm := range permissions {
				if perm.APIGroup == "apiextensions.k8s.io" && perm.Resource == "customresourcedefinitions" && perm.Verb == "get" && perm.Namespace == "" {
					hasCRDGet = true
				}
				if perm.APIGroup == "apiextensions.k8s.io" && perm.Resource == "customresourcedefinitions" && perm.Verb == "list" && perm.Namespace == "" {
					hasCRDList = true
				}
			}

			Expect(hasCRDGet).To(BeTrue(), "Missing cluster-scoped CRD get permission")
			Expect(hasCRDList).To(BeTrue(), "Missing cluster-scoped CRD list permission")
		})

		It("should include cluster-scoped session profile permissions", func() {
			permissions := rbac.GetRequiredPermissions("gpu-lab")

			var hasProfileGet, hasProfileList bool
			for _, perm := range permissions {
				if perm.APIGroup == "dibs.sir-alfred.io" && perm.Resource == "sessionprofiles" && perm.Verb == "get" && perm.Namespace == "" {
					hasProfileGet = true
				}
				if perm.APIGroup == "dibs.sir-alfred.io" && perm.Resource == "sessionprofiles" && perm.Verb == "list" && perm.Namespace == "" {
					hasProfileList = true
				}
			}

			Expect(hasProfileGet).To(BeTrue(), "Missing cluster-scoped sessionprofiles get permission")
			Expect(hasProfileList).To(BeTrue(), "Missing cluster-scoped sessionprofiles list permission")
		})

		It("should include cluster-scoped node permissions for GPU discovery", func() {
			permissions := rbac.GetRequiredPermissions("gpu-lab")

			var hasNodeList bool
			for _, perm := range permissions {
				if perm.APIGroup == "" && perm.Resource == "nodes" && perm.Verb == "list" && perm.Namespace == "" {
					hasNodeList = true
				}
			}

			Expect(hasNodeList).To(BeTrue(), "Missing cluster-scoped nodes list permission")
		})

		It("should include the full pod lifecycle in the session namespace", func() {
			namespace := "gpu-lab"
			permissions := rbac.GetRequiredPermissions(namespace)

			verbs := map[string]bool{}
			for _, perm := range permissions {
				if perm.APIGroup == "" && perm.Resource == "pods" && perm.Namespace == namespace {
					verbs[perm.Verb] = true
				}
			}

			for _, verb := range []string{"get", "list", "create", "delete", "patch"} {
				Expect(verbs[verb]).To(BeTrue(), "Missing pods %s permission for namespace %s", verb, namespace)
			}
		})
	})

	Describe("CheckPermission", func() {
		It("should return allowed for permitted actions", func() {
			clientset := fake.NewSimpleClientset()

			// Mock the SelfSubjectAccessReview response
			clientset.PrependReactor("create", "selfsubjectaccessreviews", func(action k8stesting.Action) (bool, runtime.Object, error) {
				createAction := action.(k8stesting.CreateAction)
				sar := createAction.GetObject().(*authv1.SelfSubjectAccessReview)
				sar.Status = authv1.SubjectAccessReviewStatus{
					Allowed: true,
				}
				return true, sar, nil
			})

			perm := rbac.RequiredPermission{
				APIGroup:  "",
				Resource:  "pods",
				Verb:      "create",
				Namespace: "gpu-lab",
			}

			allowed, err := rbac.CheckPermission(context.Background(), clientset, perm)
			Expect(err).NotTo(HaveOccurred())
			Expect(allowed).To(BeTrue())
		})

		It("should return denied for forbidden actions", func() {
			clientset := fake.NewSimpleClientset()

			// Mock the SelfSubjectAccessReview response
			clientset.PrependReactor("create", "selfsubjectaccessreviews", func(action k8stesting.Action) (bool, runtime.Object, error) {
				createAction := action.(k8stesting.CreateAction)
				sar := createAction.GetObject().(*authv1.SelfSubjectAccessReview)
				sar.Status = authv1.SubjectAccessReviewStatus{
					Allowed: false,
				}
				return true, sar, nil
			})

			perm := rbac.RequiredPermission{
				APIGroup:  "",
				Resource:  "pods",
				Verb:      "delete",
				Namespace: "gpu-lab",
			}

			allowed, err := rbac.CheckPermission(context.Background(), clientset, perm)
			Expect(err).NotTo(HaveOccurred())
			Expect(allowed).To(BeFalse())
		})
	})

	Describe("VerifyCRDExists", func() {
		It("should recognize an established CRD condition", func() {
			crd := &apiextensionsv1.CustomResourceDefinition{
				ObjectMeta: metav1.ObjectMeta{
					Name: rbac.SessionProfileCRDName,
				},
				Status: apiextensionsv1.CustomResourceDefinitionStatus{
					Conditions: []apiextensionsv1.CustomResourceDefinitionCondition{
						{
							Type:   apiextensionsv1.Established,
							Status: apiextensionsv1.ConditionTrue,
						},
					},
				},
			}

			Expect(crd.Name).To(Equal("sessionprofiles.dibs.sir-alfred.io"))
			Expect(crd.Status.Conditions).To(HaveLen(1))
			Expect(crd.Status.Conditions[0].Type).To(Equal(apiextensionsv1.Established))
			Expect(crd.Status.Conditions[0].Status).To(Equal(apiextensionsv1.ConditionTrue))
		})

		It("should fail fast against an unreachable API server", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()

			config := &rest.Config{Host: "127.0.0.1:1"}
			err := rbac.VerifyCRDExists(ctx, config)
			Expect(err).To(HaveOccurred())
		})
	})
})
