package pipeline

import (
	"context"
	"errors"
	"fmt"

	"spritegen/internal/domain"
	"spritegen/internal/providers/replicate"
)

const spriteFPS = 12

var errEmptyOutput = errors.New("provider returned no output")

type spriteRun struct {
	*run
	input     domain.SpriteJobInput
	character domain.Character
	image     string // reference image key fed to the next stage
	sheets    []domain.AnimationSummary
}

type spriteStage struct {
	stage  domain.Stage
	window StageWindow
	label  string
	fn     func(ctx context.Context, window StageWindow) StageResult
}

func (o *Orchestrator) runSprite(ctx context.Context, r *run) error {
	var input domain.SpriteJobInput
	if err := r.decodeInput(&input); err != nil {
		return err
	}
	if len(input.Actions) == 0 || len(input.Directions) == 0 {
		return fmt.Errorf("%w: sprite job needs actions and directions", domain.ErrInvalidInput)
	}
	character, err := o.entities.GetCharacter(ctx, input.CharacterID)
	if err != nil {
		return fmt.Errorf("load character %s: %w", input.CharacterID, err)
	}

	s := &spriteRun{run: r, input: input, character: character, image: character.SourceImageKey}
	stages := []spriteStage{
		{domain.StageBackgroundRemoval, windowBackgroundRemoval, "Removing background", s.removeBackground},
		{domain.StageStyleTransfer, windowStyleTransfer, "Applying style", s.transferStyle},
		{domain.StageSpriteGeneration, windowSpriteGeneration, "Generating sprites", s.generateSheets},
		{domain.StageSpritePacking, windowSpritePacking, "Packing sprites", s.pack},
		{domain.StageFinalize, windowFinalize, "Finalizing", s.finalize},
	}
	for _, st := range stages {
		if err := r.checkpoint(ctx); err != nil {
			return err
		}
		if err := r.progress(ctx, st.window.Start, st.label); err != nil {
			return err
		}
		r.log.Debug().Str("stage", string(st.stage)).Msg("pipeline: stage started")
		if err := r.settle(st.stage, st.fn(ctx, st.window)); err != nil {
			return err
		}
	}
	return nil
}

// record advances progress, then appends the step. The progress write fails
// on a cancelled job, so no step lands after a cancellation.
func (r *run) record(ctx context.Context, progress int, label string, s domain.NewStep) error {
	if err := r.progress(ctx, progress, label); err != nil {
		return err
	}
	return r.step(ctx, s)
}

func (s *spriteRun) removeBackground(ctx context.Context, window StageWindow) StageResult {
	step := domain.NewStep{Stage: domain.StageBackgroundRemoval, Name: "background-removal", Order: 0}
	if s.character.SourceImageKey == "" {
		step.Output = mustJSON(map[string]any{"skipped": true, "reason": "no source image"})
		if err := s.record(ctx, window.End, "Removing background", step); err != nil {
			return fatal(err)
		}
		return succeeded()
	}

	start := s.o.now()
	key, pred, err := s.predictAndStore(ctx, fmt.Sprintf("characters/%s/clean.png", s.character.ID), func() (replicate.Prediction, error) {
		return s.o.models.RemoveBackground(ctx, s.o.blobs.URL(s.character.SourceImageKey))
	})
	if err == nil {
		err = s.o.entities.SetCharacterCleanImage(ctx, s.character.ID, key)
	}
	step.PredictionID = pred.ID
	step.DurationMS = s.since(start)
	if err != nil {
		if isStop(err) {
			return fatal(err)
		}
		step.Output = mustJSON(map[string]any{"degraded": true, "imageKey": s.image})
		step.Error = err.Error()
		if recErr := s.record(ctx, window.End, "Removing background", step); recErr != nil {
			return fatal(recErr)
		}
		return degraded(err, "background removal failed, continuing with the original image")
	}

	s.image = key
	step.Output = mustJSON(map[string]any{"cleanImageKey": key})
	if err := s.record(ctx, window.End, "Removing background", step); err != nil {
		return fatal(err)
	}
	return succeeded()
}

func (s *spriteRun) transferStyle(ctx context.Context, window StageWindow) StageResult {
	step := domain.NewStep{Stage: domain.StageStyleTransfer, Name: "style-transfer", Order: 1}
	if s.image == "" {
		step.Output = mustJSON(map[string]any{"skipped": true, "reason": "no reference image"})
		if err := s.record(ctx, window.End, "Applying style", step); err != nil {
			return fatal(err)
		}
		return succeeded()
	}

	start := s.o.now()
	key, pred, err := s.predictAndStore(ctx, fmt.Sprintf("characters/%s/styled.png", s.character.ID), func() (replicate.Prediction, error) {
		return s.o.models.StyleTransfer(ctx, s.o.blobs.URL(s.image), styleTransferPrompt(s.character))
	})
	step.PredictionID = pred.ID
	step.DurationMS = s.since(start)
	if err != nil {
		if isStop(err) {
			return fatal(err)
		}
		step.Output = mustJSON(map[string]any{"degraded": true, "imageKey": s.image})
		step.Error = err.Error()
		if recErr := s.record(ctx, window.End, "Applying style", step); recErr != nil {
			return fatal(recErr)
		}
		return degraded(err, "style transfer failed, continuing with the unstyled image")
	}

	s.image = key
	step.Output = mustJSON(map[string]any{"styledImageKey": key})
	if err := s.record(ctx, window.End, "Applying style", step); err != nil {
		return fatal(err)
	}
	return succeeded()
}

func (s *spriteRun) generateSheets(ctx context.Context, window StageWindow) StageResult {
	total := len(s.input.Actions) * len(s.input.Directions)
	i := 0
	for _, action := range s.input.Actions {
		for _, direction := range s.input.Directions {
			if i > 0 {
				if err := s.checkpoint(ctx); err != nil {
					return fatal(err)
				}
				if err := s.progress(ctx, window.At(i, total), fmt.Sprintf("Generating %s %s", action, direction)); err != nil {
					return fatal(err)
				}
			}
			res := s.generateUnit(ctx, window, i, total, action, direction)
			if res.Outcome == Fatal {
				return res
			}
			if err := s.settle(domain.StageSpriteGeneration, res); err != nil {
				return fatal(err)
			}
			i++
		}
	}
	return succeeded()
}

// generateUnit renders one action/direction sheet and upscales it on a
// best-effort basis.
func (s *spriteRun) generateUnit(ctx context.Context, window StageWindow, i, total int, action, direction string) StageResult {
	start := s.o.now()
	style := spriteStyle(s.character.GameView)
	req := replicate.SpriteSheetRequest{
		Prompt: spritePrompt(s.character, action, direction),
		Style:  style,
	}
	if s.image != "" {
		req.ImageURL = s.o.blobs.URL(s.image)
	}
	pred, err := s.o.models.GenerateSpriteSheet(ctx, req)
	if err != nil {
		return fatal(fmt.Errorf("generate %s-%s: %w", action, direction, err))
	}
	sheetURL := pred.First()
	if sheetURL == "" {
		return fatal(fmt.Errorf("generate %s-%s: %w", action, direction, errEmptyOutput))
	}

	width, height := baseSheetSize(style)
	upscaled := false
	up, upErr := s.o.models.Upscale(ctx, sheetURL)
	if upErr == nil && up.First() == "" {
		upErr = errEmptyOutput
	}
	if upErr == nil {
		sheetURL = up.First()
		width *= replicate.UpscaleFactor
		height *= replicate.UpscaleFactor
		upscaled = true
	} else if isStop(upErr) {
		return fatal(upErr)
	}

	key, err := s.o.blobs.Import(ctx, fmt.Sprintf("sprites/%s/%s/%s-%s.png", s.character.ID, s.job.ID, action, direction), sheetURL)
	if err != nil {
		return fatal(fmt.Errorf("store %s-%s sheet: %w", action, direction, err))
	}
	s.sheets = append(s.sheets, domain.AnimationSummary{
		Action:    action,
		Direction: direction,
		SheetKey:  key,
		Width:     width,
		Height:    height,
		FPS:       spriteFPS,
		Upscaled:  upscaled,
	})

	output := map[string]any{
		"action":    action,
		"direction": direction,
		"sheetKey":  key,
		"width":     width,
		"height":    height,
		"upscaled":  upscaled,
	}
	if upErr != nil {
		output["upscaleError"] = upErr.Error()
	}
	step := domain.NewStep{
		Stage:        domain.StageSpriteGeneration,
		Name:         fmt.Sprintf("sprite-%s-%s", action, direction),
		Order:        i + 2,
		Output:       mustJSON(output),
		PredictionID: pred.ID,
		DurationMS:   s.since(start),
	}
	if err := s.record(ctx, window.At(i+1, total), fmt.Sprintf("Generated %s %s", action, direction), step); err != nil {
		return fatal(err)
	}
	if upErr != nil {
		return degraded(upErr, fmt.Sprintf("upscale failed for %s-%s, kept %dx%d", action, direction, width, height))
	}
	return succeeded()
}

func (s *spriteRun) pack(ctx context.Context, window StageWindow) StageResult {
	animations := make([]domain.Animation, 0, len(s.sheets))
	for _, sheet := range s.sheets {
		animations = append(animations, domain.Animation{
			CharacterID: s.character.ID,
			JobID:       s.job.ID,
			Action:      sheet.Action,
			Direction:   sheet.Direction,
			SheetKey:    sheet.SheetKey,
			Width:       sheet.Width,
			Height:      sheet.Height,
			FPS:         sheet.FPS,
			Upscaled:    sheet.Upscaled,
		})
	}
	if err := s.o.entities.SaveAnimations(ctx, animations); err != nil {
		return fatal(fmt.Errorf("save animations: %w", err))
	}
	step := domain.NewStep{
		Stage:  domain.StageSpritePacking,
		Name:   "sprite-packing",
		Order:  len(s.sheets) + 2,
		Output: mustJSON(map[string]any{"animations": len(animations)}),
	}
	if err := s.record(ctx, window.End, "Packing sprites", step); err != nil {
		return fatal(err)
	}
	return succeeded()
}

func (s *spriteRun) finalize(ctx context.Context, window StageWindow) StageResult {
	allUpscaled := len(s.sheets) > 0
	for _, sheet := range s.sheets {
		allUpscaled = allUpscaled && sheet.Upscaled
	}
	result := domain.SpriteResult{
		Animations: s.sheets,
		Upscaled:   allUpscaled,
		Warnings:   s.warnings,
	}
	step := domain.NewStep{
		Stage:  domain.StageFinalize,
		Name:   "finalize",
		Order:  len(s.sheets) + 3,
		Output: mustJSON(map[string]any{"upscaled": allUpscaled, "warnings": len(s.warnings)}),
	}
	if err := s.record(ctx, window.Start, "Finalizing", step); err != nil {
		return fatal(err)
	}
	if err := s.o.jobs.Complete(ctx, s.job.ID, mustJSON(result)); err != nil {
		return fatal(fmt.Errorf("complete job: %w", err))
	}
	return succeeded()
}

// predictAndStore runs a prediction and copies its first output into blob
// storage under key.
func (s *spriteRun) predictAndStore(ctx context.Context, key string, predict func() (replicate.Prediction, error)) (string, replicate.Prediction, error) {
	pred, err := predict()
	if err != nil {
		return "", pred, err
	}
	if pred.First() == "" {
		return "", pred, errEmptyOutput
	}
	stored, err := s.o.blobs.Import(ctx, key, pred.First())
	if err != nil {
		return "", pred, err
	}
	return stored, pred, nil
}

// isStop reports errors that must abort instead of degrading.
func isStop(err error) bool {
	return errors.Is(err, errCancelled) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
