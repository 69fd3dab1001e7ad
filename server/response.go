package server

import (
	"encoding/base64"
	"time"

	"github.com/krau/konarate/codec"
	"github.com/krau/konarate/enhancer"
	"github.com/krau/konarate/scorer"
	"github.com/krau/konarate/service"
)

type rateResponse struct {
	Filename       string     `json:"filename"`
	RawScore       float64    `json:"raw_score"`
	QualityScore   float64    `json:"quality_score"`
	ProcessingTime float64    `json:"processing_time"`
	InferenceTime  float64    `json:"inference_time"`
	ImageInfo      codec.Info `json:"image_info"`
}

type ratingInfo struct {
	RawScore       float64     `json:"raw_score"`
	QualityScore   float64     `json:"quality_score"`
	ProcessingTime float64     `json:"processing_time"`
	ImageInfo      *codec.Info `json:"image_info,omitempty"`
}

type enhancementInfo struct {
	OriginalSize   [2]int  `json:"original_size"`
	EnhancedSize   [2]int  `json:"enhanced_size"`
	ScaleFactor    int     `json:"scale_factor"`
	SizeIncrease   float64 `json:"size_increase"`
	InferenceTime  float64 `json:"inference_time"`
	ProcessingTime float64 `json:"processing_time"`
}

type enhanceResponse struct {
	Filename            string              `json:"filename"`
	OriginalInfo        enhancer.SourceInfo `json:"original_info"`
	EnhancementInfo     enhancementInfo     `json:"enhancement_info"`
	EnhancedImageBase64 string              `json:"enhanced_image_base64"`
	ProcessingTime      float64             `json:"processing_time"`
	Success             bool                `json:"success"`
}

type completeResponse struct {
	Filename            string              `json:"filename"`
	OriginalRating      ratingInfo          `json:"original_rating"`
	OriginalInfo        enhancer.SourceInfo `json:"original_info"`
	EnhancementInfo     enhancementInfo     `json:"enhancement_info"`
	EnhancedRating      ratingInfo          `json:"enhanced_rating"`
	ImprovementAnalysis service.Improvement `json:"improvement_analysis"`
	EnhancedImageBase64 string              `json:"enhanced_image_base64"`
	ProcessingTime      float64             `json:"processing_time"`
	Success             bool                `json:"success"`
}

func seconds(d time.Duration) float64 { return d.Seconds() }

func newRateResponse(filename string, r *scorer.Result) rateResponse {
	return rateResponse{
		Filename:       filename,
		RawScore:       r.RawScore,
		QualityScore:   r.ScaledScore,
		ProcessingTime: seconds(r.ProcessingTime),
		InferenceTime:  seconds(r.InferenceTime),
		ImageInfo:      r.Image,
	}
}

func newEnhancementInfo(r *enhancer.Result) enhancementInfo {
	return enhancementInfo{
		OriginalSize:   [2]int{r.OriginalSize.Width, r.OriginalSize.Height},
		EnhancedSize:   [2]int{r.EnhancedSize.Width, r.EnhancedSize.Height},
		ScaleFactor:    r.ScaleFactor,
		SizeIncrease:   r.SizeIncrease,
		InferenceTime:  seconds(r.InferenceTime),
		ProcessingTime: seconds(r.ProcessingTime),
	}
}

func newEnhanceResponse(filename string, r *enhancer.Result) enhanceResponse {
	return enhanceResponse{
		Filename:            filename,
		OriginalInfo:        r.Source,
		EnhancementInfo:     newEnhancementInfo(r),
		EnhancedImageBase64: base64.StdEncoding.EncodeToString(r.Image),
		ProcessingTime:      seconds(r.ProcessingTime),
		Success:             true,
	}
}

func newCompleteResponse(filename string, r *service.PipelineResult) completeResponse {
	info := r.Original.Image
	return completeResponse{
		Filename: filename,
		OriginalRating: ratingInfo{
			RawScore:       r.Original.RawScore,
			QualityScore:   r.Original.ScaledScore,
			ProcessingTime: seconds(r.Original.ProcessingTime),
			ImageInfo:      &info,
		},
		OriginalInfo:    r.Enhancement.Source,
		EnhancementInfo: newEnhancementInfo(r.Enhancement),
		EnhancedRating: ratingInfo{
			RawScore:       r.Enhanced.RawScore,
			QualityScore:   r.Enhanced.ScaledScore,
			ProcessingTime: seconds(r.Enhanced.ProcessingTime),
		},
		ImprovementAnalysis: r.Improvement,
		EnhancedImageBase64: base64.StdEncoding.EncodeToString(r.Enhancement.Image),
		ProcessingTime:      seconds(r.ProcessingTime),
		Success:             true,
	}
}
