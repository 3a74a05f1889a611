//go:build js && wasm

package main

import (
	"context"
	"image"
	"math"
	"syscall/js"

	"slitdrift/pkg/report"
	sd "slitdrift/pkg/slitdrift"
)

var (
	cfg   = sd.DefaultConfig()
	store = sd.NewMemStore()

	lastSummary *report.Summary
)

func main() {
	js.Global().Set("loadFrame", js.FuncOf(loadFrame))
	js.Global().Set("measureFrame", js.FuncOf(measureFrame))
	js.Global().Set("aggregate", js.FuncOf(aggregate))
	js.Global().Set("renderSummary", js.FuncOf(renderSummary))
	select {} // block forever
}

func frameBytes(v js.Value) []byte {
	length := v.Get("length").Int()
	data := make([]byte, length)
	js.CopyBytesToGo(data, v)
	return data
}

// loadFrame(name, fileBytes) keeps a frame for aggregate and returns its
// header values.
func loadFrame(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return errorResult("usage: loadFrame(name, fileBytes)")
	}
	f, err := sd.ReadFrameFromBytes(args[0].String(), frameBytes(args[1]), cfg)
	if err != nil {
		return errorResult("FITS parse error: " + err.Error())
	}
	store.Add(f)
	return js.ValueOf(map[string]interface{}{
		"name":    f.Info.Name,
		"number":  f.Info.Number,
		"object":  f.Info.Object,
		"yoffset": f.Info.YOffset,
		"airmass": jsFloat(f.Info.Airmass),
		"utc":     f.Info.UTC.Format("15:04:05"),
		"rows":    f.Rows(),
		"cols":    f.Cols(),
	})
}

// measureFrame(fileBytes) locates and fits the star of a single frame and
// integrates its spectrum.
func measureFrame(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("usage: measureFrame(fileBytes)")
	}
	f, err := sd.ReadFrameFromBytes("frame.fits", frameBytes(args[0]), cfg)
	if err != nil {
		return errorResult("FITS parse error: " + err.Error())
	}
	defer f.Close()

	profile, err := sd.Collapse(f, cfg)
	if err != nil {
		return errorResult("collapse error: " + err.Error())
	}
	region, err := sd.LocateStar(profile, cfg)
	if err != nil {
		return errorResult("locate error: " + err.Error())
	}
	cut, err := f.Cutout(image.Rect(0, region.Start, f.Cols(), region.End))
	if err != nil {
		return errorResult("cutout error: " + err.Error())
	}
	defer cut.Close()

	fit, err := sd.FitCutout(cut, cfg)
	if err != nil {
		return errorResult("fit error: " + err.Error())
	}
	result := map[string]interface{}{
		"rows":      f.Rows(),
		"cols":      f.Cols(),
		"starStart": region.Start,
		"starEnd":   region.End,
		"center":    fit.Center + float64(region.Start),
		"centerErr": jsFloat(fit.CenterErr),
		"width":     fit.Width,
		"seeing":    fit.Width * cfg.FWHMFactor * cfg.PlateScale,
		"rSquared":  fit.RSquared,
	}
	if flux, err := sd.StarFlux(cut, cfg); err == nil {
		result["flux"] = flux.Total
	}

	jsProfile := make([]interface{}, len(profile))
	for i, v := range profile {
		jsProfile[i] = jsFloat(v)
	}
	result["profile"] = jsProfile
	return js.ValueOf(result)
}

// aggregate({mask, date, dither}) runs star and slit drift over the loaded
// frames.
func aggregate(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 || args[0].Type() != js.TypeObject {
		return errorResult("usage: aggregate({mask, date, dither})")
	}
	obs := sd.Observation{
		Mask:   args[0].Get("mask").String(),
		Date:   args[0].Get("date").String(),
		Dither: args[0].Get("dither").Float(),
	}
	run := cfg
	run.FailurePolicy = sd.PolicySkip

	res, err := sd.NewAggregator(run, obs, store, nil).Run(context.Background())
	if err != nil {
		return errorResult("aggregate error: " + err.Error())
	}
	lastSummary = &report.Summary{Title: obs.Mask + " " + obs.Date, Star: &res.Star, Slit: &res.Slit}

	series := func(s sd.DriftSeries) interface{} {
		out := make([]interface{}, len(s.Points))
		for i, p := range s.Points {
			point := map[string]interface{}{
				"frame":  p.Frame.Name,
				"utc":    p.Frame.UTC.Format("15:04:05"),
				"offset": jsFloat(p.Offset),
				"seeing": jsFloat(p.Seeing),
			}
			if p.Err != nil {
				point["error"] = p.Err.Error()
			}
			out[i] = point
		}
		return out
	}
	shifts := func(s sd.DriftSeries) interface{} {
		out := make([]interface{}, len(s.Points))
		for i, p := range s.Points {
			out[i] = map[string]interface{}{
				"frame": p.Frame.Name,
				"x":     jsFloat(p.Shift.X),
				"y":     jsFloat(p.Shift.Y),
			}
		}
		return out
	}
	return js.ValueOf(map[string]interface{}{
		"starA": series(res.Star.A),
		"starB": series(res.Star.B),
		"slitA": shifts(res.Slit.A),
		"slitB": shifts(res.Slit.B),
	})
}

func renderSummary(this js.Value, args []js.Value) interface{} {
	if lastSummary == nil {
		return js.Null()
	}

	jpegBytes, err := report.RenderSummaryBytes(*lastSummary)
	if err != nil {
		return js.Null()
	}

	uint8Array := js.Global().Get("Uint8Array").New(len(jpegBytes))
	js.CopyBytesToJS(uint8Array, jpegBytes)
	return uint8Array
}

// jsFloat maps NaN to null; js.ValueOf keeps NaN but JSON.stringify does not.
func jsFloat(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

func errorResult(msg string) interface{} {
	return js.ValueOf(map[string]interface{}{
		"error": msg,
	})
}
