package protocol_test

import (
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/pitchview/internal/models"
	"github.com/your-org/pitchview/internal/protocol"
)

var jpegBytes = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 0xFF, 0xD9}

func b64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

func TestParse_Variants(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		kind protocol.Kind
	}{
		{"video meta", `{"video_meta":{"width":640,"height":480,"total_frames":120}}`, protocol.KindVideoMeta},
		{"progress", `{"progress":42.5,"current_frame_num":51}`, protocol.KindProgress},
		{"zero progress", `{"progress":0}`, protocol.KindProgress},
		{"incremental frame", `{"frame_num":3,"image":"` + b64(jpegBytes) + `","metrics":{"stride_angle":12.5}}`, protocol.KindFrame},
		{"metrics-only frame", `{"frame_num":3,"metrics":{}}`, protocol.KindFrame},
		{"error", `{"error":"video unreadable"}`, protocol.KindError},
		{"batch parallel arrays", `{"final_predict":"好球","all_frames_data":{"metrics":[],"images":[]}}`, protocol.KindBatchResult},
		{"batch frame array", `{"final_prediction":"壞球","all_frames_data":[]}`, protocol.KindBatchResult},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := protocol.Parse([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.kind, msg.Kind())
		})
	}
}

func TestParse_ErrorWinsOverProgress(t *testing.T) {
	raw := `{"progress":55,"current_frame_num":10,"error":"model crashed"}`

	msg, err := protocol.Parse([]byte(raw))
	require.NoError(t, err)

	em, ok := msg.(protocol.ErrorMsg)
	require.True(t, ok, "got %T", msg)
	assert.Equal(t, "model crashed", em.Message)
	assert.True(t, msg.Terminal())
}

func TestParse_Precedence(t *testing.T) {
	t.Run("error beats batch", func(t *testing.T) {
		msg, err := protocol.Parse([]byte(`{"error":"x","final_predict":"好球","all_frames_data":[]}`))
		require.NoError(t, err)
		assert.Equal(t, protocol.KindError, msg.Kind())
	})
	t.Run("batch beats frame", func(t *testing.T) {
		msg, err := protocol.Parse([]byte(`{"final_predict":"好球","all_frames_data":[],"frame_num":1,"metrics":{}}`))
		require.NoError(t, err)
		assert.Equal(t, protocol.KindBatchResult, msg.Kind())
	})
	t.Run("frame beats meta and progress", func(t *testing.T) {
		msg, err := protocol.Parse([]byte(`{"frame_num":1,"metrics":{},"video_meta":{"width":1,"height":1},"progress":3}`))
		require.NoError(t, err)
		assert.Equal(t, protocol.KindFrame, msg.Kind())
	})
	t.Run("meta beats progress", func(t *testing.T) {
		msg, err := protocol.Parse([]byte(`{"video_meta":{"width":2,"height":2,"total_frames":1},"progress":3}`))
		require.NoError(t, err)
		assert.Equal(t, protocol.KindVideoMeta, msg.Kind())
	})
	t.Run("empty error string is not an error", func(t *testing.T) {
		msg, err := protocol.Parse([]byte(`{"error":"","progress":10}`))
		require.NoError(t, err)
		assert.Equal(t, protocol.KindProgress, msg.Kind())
	})
	t.Run("falsy error values are not errors", func(t *testing.T) {
		for _, v := range []string{`0`, `0.0`, `-0`, `false`, `null`} {
			msg, err := protocol.Parse([]byte(`{"error":` + v + `,"progress":10}`))
			require.NoError(t, err, v)
			assert.Equal(t, protocol.KindProgress, msg.Kind(), v)
		}
	})
	t.Run("non-zero error code is an error", func(t *testing.T) {
		msg, err := protocol.Parse([]byte(`{"error":500,"progress":10}`))
		require.NoError(t, err)
		require.Equal(t, protocol.KindError, msg.Kind())
		assert.Equal(t, "500", msg.(protocol.ErrorMsg).Message)
	})
	t.Run("prediction without frames is not a batch", func(t *testing.T) {
		msg, err := protocol.Parse([]byte(`{"final_predict":"好球","progress":100}`))
		require.NoError(t, err)
		assert.Equal(t, protocol.KindProgress, msg.Kind())
	})
}

func TestParse_Frame(t *testing.T) {
	raw := `{"frame_num":7,"image":"data:image/jpeg;base64,` + b64(jpegBytes) + `",` +
		`"metrics":{"stride_angle":30.5,"arm_symmetry":null,"unknown_metric":1,"hip_rotation":"n/a"}}`

	msg, err := protocol.Parse([]byte(raw))
	require.NoError(t, err)

	fm := msg.(protocol.FrameMsg)
	assert.Equal(t, 7, fm.Frame.FrameNum)
	assert.Equal(t, jpegBytes, fm.Frame.Image)
	assert.Equal(t, models.MetricMap{models.MetricStrideAngle: 30.5}, fm.Frame.Metrics)
	assert.False(t, msg.Terminal())
}

func TestParse_BatchParallelArrays(t *testing.T) {
	raw := `{"final_predict":"好球","all_frames_data":{` +
		`"metrics":[{"frame_num":1,"metrics":{"stride_angle":1}},{"frame_num":3,"throwing_angle":2},{"metrics":{}}],` +
		`"images":["` + b64(jpegBytes) + `",null]}}`

	msg, err := protocol.Parse([]byte(raw))
	require.NoError(t, err)

	res := msg.(protocol.BatchResultMsg).Result
	assert.Equal(t, "好球", res.FinalPrediction)
	require.Len(t, res.Frames, 3)

	assert.Equal(t, 1, res.Frames[0].FrameNum)
	assert.Equal(t, jpegBytes, res.Frames[0].Image)
	assert.Equal(t, models.MetricMap{models.MetricStrideAngle: 1}, res.Frames[0].Metrics)

	assert.Equal(t, 3, res.Frames[1].FrameNum)
	assert.Nil(t, res.Frames[1].Image)
	assert.Equal(t, models.MetricMap{models.MetricThrowingAngle: 2}, res.Frames[1].Metrics)

	// missing frame_num falls back to position
	assert.Equal(t, 3, res.Frames[2].FrameNum)
	assert.Empty(t, res.Frames[2].Metrics)
}

func TestParse_BatchFrameArray(t *testing.T) {
	raw := `{"final_predict":"壞球","all_frames_data":[` +
		`{"frame_num":2,"image":"` + b64(jpegBytes) + `","metrics":{"ankle_height":9}},` +
		`{"metrics":{"elbow_height":4}}]}`

	msg, err := protocol.Parse([]byte(raw))
	require.NoError(t, err)

	res := msg.(protocol.BatchResultMsg).Result
	require.Len(t, res.Frames, 2)
	assert.Equal(t, 2, res.Frames[0].FrameNum)
	assert.Equal(t, jpegBytes, res.Frames[0].Image)
	assert.Equal(t, 2, res.Frames[1].FrameNum)
	v, ok := res.Frames[1].Metrics.Get(models.MetricElbowHeight)
	assert.True(t, ok)
	assert.Equal(t, 4.0, v)
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{"progress":`},
		{"not an object", `[1,2,3]`},
		{"null", `null`},
		{"no known fields", `{"hello":"world"}`},
		{"non numeric progress", `{"progress":"ten"}`},
		{"zero size meta", `{"video_meta":{"width":0,"height":480}}`},
		{"frame number zero", `{"frame_num":0,"metrics":{}}`},
		{"fractional frame number", `{"frame_num":1.5,"metrics":{}}`},
		{"bad image", `{"frame_num":1,"image":"!!!not-base64!!!"}`},
		{"batch frames wrong type", `{"final_predict":"好球","all_frames_data":"nope"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := protocol.Parse([]byte(tt.raw))
			require.Error(t, err)
			assert.Nil(t, msg)
			assert.True(t, errors.Is(err, protocol.ErrMalformed))
		})
	}
}
