package wizard_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/split-checkout/internal/wizard"
)

func TestInitialStep(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name          string
		hasAddresses  bool
		uploadEnabled bool
		want          wizard.Step
	}{
		{"resume in-progress split", true, true, wizard.StepAllocate},
		{"resume wins over upload", true, false, wizard.StepAllocate},
		{"fresh cart with upload", false, true, wizard.StepUpload},
		{"fresh cart without upload", false, false, wizard.StepReview},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, wizard.InitialStep(tc.hasAddresses, tc.uploadEnabled))
		})
	}
}

func TestForwardAndBackward(t *testing.T) {
	t.Parallel()

	c := wizard.Controller{Step: wizard.StepUpload, UploadEnabled: true}
	require.NoError(t, c.Next())
	require.Equal(t, wizard.StepReview, c.Step)
	require.NoError(t, c.Next())
	require.Equal(t, wizard.StepAllocate, c.Step)

	require.ErrorIs(t, c.Next(), wizard.ErrInvalidTransition)

	require.NoError(t, c.Previous())
	require.Equal(t, wizard.StepReview, c.Step)
	require.NoError(t, c.Previous())
	require.Equal(t, wizard.StepUpload, c.Step)
	require.ErrorIs(t, c.Previous(), wizard.ErrInvalidTransition)
}

func TestPreviousBlockedWhenUploadDisabled(t *testing.T) {
	t.Parallel()

	c := wizard.Controller{Step: wizard.StepReview}
	require.ErrorIs(t, c.Previous(), wizard.ErrInvalidTransition)
}
