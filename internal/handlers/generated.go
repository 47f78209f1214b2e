package handlers

import (
	"context"
	"fmt"

	"github.com/muurk/scenebridge/internal/rodin"
	"github.com/muurk/scenebridge/internal/router"
	"github.com/muurk/scenebridge/internal/scene"
)

type generated struct {
	scene  *scene.Scene
	client *rodin.Client
}

func (g *generated) createJob(ctx context.Context, p router.Params) (router.Apply, error) {
	if err := p.Expect("text_prompt", "images", "tier", "bbox_condition"); err != nil {
		return nil, err
	}
	prompt, err := p.StringOr("text_prompt", "")
	if err != nil {
		return nil, err
	}
	images, err := p.StringSlice("images")
	if err != nil {
		return nil, err
	}
	tier, err := p.StringOr("tier", rodin.DefaultTier)
	if err != nil {
		return nil, err
	}
	bbox, err := p.Floats("bbox_condition")
	if err != nil {
		return nil, err
	}

	job, err := g.client.CreateJob(ctx, rodin.JobRequest{
		Prompt:        prompt,
		Images:        images,
		Tier:          tier,
		BBoxCondition: bbox,
	})
	if err != nil {
		return nil, err
	}
	return done(map[string]any{
		"job_created":      true,
		"task_uuid":        job.TaskUUID,
		"subscription_key": job.SubscriptionKey,
		"job_uuids":        job.JobUUIDs,
	}), nil
}

func (g *generated) pollStatus(ctx context.Context, p router.Params) (router.Apply, error) {
	if err := p.Expect("subscription_key"); err != nil {
		return nil, err
	}
	key, err := p.String("subscription_key")
	if err != nil {
		return nil, err
	}
	st, err := g.client.Status(ctx, key)
	if err != nil {
		return nil, err
	}

	status := rodin.StatusGenerating
	switch {
	case st.Failed:
		status = rodin.StatusFailed
	case st.Done:
		status = rodin.StatusDone
	}
	return done(map[string]any{
		"status": status,
		"done":   st.Done,
		"failed": st.Failed,
		"jobs":   st.Jobs,
	}), nil
}

func (g *generated) importAsset(ctx context.Context, p router.Params) (router.Apply, error) {
	if err := p.Expect("name", "task_uuid"); err != nil {
		return nil, err
	}
	name, err := p.String("name")
	if err != nil {
		return nil, err
	}
	taskUUID, err := p.String("task_uuid")
	if err != nil {
		return nil, err
	}

	res, err := g.client.Download(ctx, taskUUID)
	if err != nil {
		return nil, err
	}
	return func() (any, error) {
		obj := g.scene.Import(name, res.Model, scene.Vec3{})
		return map[string]any{
			"succeed":  true,
			"imported": true,
			"name":     obj.Name,
			"filepath": res.Model,
			"message":  fmt.Sprintf("Generated model imported as '%s'", obj.Name),
		}, nil
	}, nil
}
