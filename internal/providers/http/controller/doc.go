// Package controller routes requests on a shared session back to the
// callers that submitted them.
//
// Each Controller subscribes to a session.Session and keeps a registry of
// the tasks it created. Session events for other tasks are ignored. When a
// task completes the controller assembles its body, validates the response
// against the controller's profile, and calls exactly one delegate method:
//
//	c := controller.NewJSON(nil)
//	defer c.Close()
//	c.Submit(req, controller.Funcs{
//		OnDocument: func(req *types.Request, doc *jsonapi.Document) { ... },
//		OnFailure:  func(req *types.Request, err error, status *types.Status) { ... },
//	})
//
// Delegate callbacks, including credential and trust prompts raised by
// challenges, run one at a time on the controller's dispatcher.
package controller
