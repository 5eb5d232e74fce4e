package session

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
)

func TestSessionLint(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Session Lint Suite")
}

var _ = Describe("Lint", func() {
	var pod *corev1.Pod

	BeforeEach(func() {
		s := DefaultSpec()
		s.Name = "train-mlp"
		var err error
		pod, err = BuildPod(s)
		Expect(err).NotTo(HaveOccurred())
	})

	Context("with a freshly built session pod", func() {
		It("should report no problems", func() {
			Expect(Lint(pod)).To(BeEmpty())
		})

		It("should pin the gpu product with the In operator", func() {
			terms := pod.Spec.Affinity.NodeAffinity.RequiredDuringSchedulingIgnoredDuringExecution.NodeSelectorTerms
			Expect(terms).To(HaveLen(1))
			Expect(terms[0].MatchExpressions[0].Operator).To(Equal(corev1.NodeSelectorOpIn))
		})
	})

	Context("when the gpu request drifts from the limit", func() {
		It("should flag the request field", func() {
			pod.Spec.Containers[0].Resources.Requests[ResourceGPU] = resource.MustParse("2")

			problems := Lint(pod)
			Expect(problems).NotTo(BeEmpty())

			var fields []string
			for _, p := range problems {
				fields = append(fields, p.Field)
			}
			Expect(fields).To(ContainElement(ContainSubstring("requests[nvidia.com/gpu]")))
		})
	})

	Context("when the affinity uses a numeric comparison operator", func() {
		It("should reject Gt even though the API type allows it", func() {
			terms := pod.Spec.Affinity.NodeAffinity.RequiredDuringSchedulingIgnoredDuringExecution.NodeSelectorTerms
			terms[0].MatchExpressions[0].Operator = corev1.NodeSelectorOpGt
			terms[0].MatchExpressions[0].Values = []string{"1"}

			problems := Lint(pod)
			Expect(problems).To(HaveLen(1))
			Expect(problems[0].Message).To(ContainSubstring("unsupported operator"))
		})
	})
})
