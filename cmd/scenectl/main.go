package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/docopt/docopt-go"

	"github.com/james226/scene-api/client"
	"github.com/james226/scene-api/scene"
)

const SceneCtlVersion = "0.0.1"

var Out *log.Logger
var Err *log.Logger

func init() {
	Out = log.New(os.Stdout, "", 0)
	Err = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lshortfile)
}

func main() {
	usage := `Scene control.

The default url is ws://localhost:3000/ws

Usage:
    scenectl tail [--url=<url>] <project_id>
    scenectl chat [--url=<url>] [--name=<name>] <project_id> <message>
    scenectl move [--url=<url>] <project_id> <x> <y> <z>
    scenectl color [--url=<url>] <project_id> <color>
    scenectl annotate [--url=<url>] <project_id> <x> <y> <z> <text>
    scenectl unannotate [--url=<url>] <project_id> <annotation_id>

Options:
    -h --help        Show this screen.
    --version        Show version.
    --url=<url>      Websocket url of the scene server.
    --name=<name>    Display name for chat [default: scenectl].`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], SceneCtlVersion)
	if err != nil {
		panic(err)
	}

	if tail_, _ := opts.Bool("tail"); tail_ {
		tail(opts)
	} else if chat_, _ := opts.Bool("chat"); chat_ {
		chat(opts)
	} else if move_, _ := opts.Bool("move"); move_ {
		move(opts)
	} else if color_, _ := opts.Bool("color"); color_ {
		color(opts)
	} else if annotate_, _ := opts.Bool("annotate"); annotate_ {
		annotate(opts)
	} else if unannotate_, _ := opts.Bool("unannotate"); unannotate_ {
		unannotate(opts)
	}
}

func url(opts docopt.Opts) string {
	if u, err := opts.String("--url"); err == nil && u != "" {
		return u
	}
	return "ws://localhost:3000/ws"
}

func vector(opts docopt.Opts) (scene.Vector3, error) {
	var v scene.Vector3
	for _, axis := range []struct {
		key string
		dst *float64
	}{{"<x>", &v.X}, {"<y>", &v.Y}, {"<z>", &v.Z}} {
		s, _ := opts.String(axis.key)
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return v, fmt.Errorf("invalid %s (%s)", axis.key, err)
		}
		*axis.dst = f
	}
	return v, nil
}

// join dials and waits for the snapshot. The returned echo channel receives
// the types of messages applied after the snapshot.
func join(opts docopt.Opts, settings *client.Settings) (*client.Client, chan string) {
	projectId, _ := opts.String("<project_id>")

	echo := make(chan string, 16)
	settings.OnMessage = func(msg *scene.Message, applied bool) {
		if msg.Type == scene.TypeLoadProject {
			return
		}
		select {
		case echo <- msg.Type:
		default:
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c, err := client.Dial(ctx, url(opts), projectId, settings, nil)
	if err != nil {
		Err.Fatalf("Could not connect (%s).", err)
	}
	if err := c.WaitLoaded(ctx); err != nil {
		c.Close()
		Err.Fatalf("Could not load project %s (%s).", projectId, err)
	}
	return c, echo
}

// sendAndWait joins, sends one event and waits for the room to echo it back.
func sendAndWait(opts docopt.Opts, settings *client.Settings, echoType string, send func(*client.Client) error) {
	c, echo := join(opts, settings)
	defer c.Close()

	await(c, echo, echoType, func() error {
		return send(c)
	})
}

func await(c *client.Client, echo chan string, echoType string, send func() error) {
	if err := send(); err != nil {
		Err.Fatalf("Could not send (%s).", err)
	}

	timeout := time.After(5 * time.Second)
	for {
		select {
		case messageType := <-echo:
			if messageType == echoType {
				Out.Printf("ok")
				return
			}
		case <-c.Done():
			Err.Fatalf("Connection lost.")
		case <-timeout:
			Err.Fatalf("No confirmation from the server.")
		}
	}
}

func tail(opts docopt.Opts) {
	settings := client.DefaultSettings()
	c, echo := join(opts, settings)
	defer c.Close()

	bytes, _ := json.MarshalIndent(snapshotOf(c.Mirror()), "", "  ")
	Out.Printf("%s", bytes)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	for {
		select {
		case messageType := <-echo:
			Out.Printf("%s %s", time.Now().Format(time.RFC3339), messageType)
		case <-c.Done():
			Err.Printf("Connection lost.")
			return
		case <-ctx.Done():
			return
		}
	}
}

func chat(opts docopt.Opts) {
	settings := client.DefaultSettings()
	if name, err := opts.String("--name"); err == nil && name != "" {
		settings.UserName = name
	}
	message, _ := opts.String("<message>")

	sendAndWait(opts, settings, scene.TypeReceiveMessage, func(c *client.Client) error {
		return c.SendChat(message)
	})
}

func move(opts docopt.Opts) {
	position, err := vector(opts)
	if err != nil {
		Err.Fatalf("%s", err)
	}
	settings := client.DefaultSettings()

	sendAndWait(opts, settings, scene.TypeObjectUpdated, func(c *client.Client) error {
		transform := c.Mirror().Object
		transform.Position = position
		return c.UpdateObject(transform)
	})
}

func color(opts docopt.Opts) {
	value, _ := opts.String("<color>")

	sendAndWait(opts, client.DefaultSettings(), scene.TypeCubeColorUpdated, func(c *client.Client) error {
		return c.UpdateColor(value)
	})
}

func annotate(opts docopt.Opts) {
	position, err := vector(opts)
	if err != nil {
		Err.Fatalf("%s", err)
	}
	text, _ := opts.String("<text>")

	sendAndWait(opts, client.DefaultSettings(), scene.TypeAnnotationAdded, func(c *client.Client) error {
		annotation, err := c.AddAnnotation(position, text)
		if err == nil {
			Out.Printf("%s", annotation.Id)
		}
		return err
	})
}

func unannotate(opts docopt.Opts) {
	annotationId, _ := opts.String("<annotation_id>")

	c, echo := join(opts, client.DefaultSettings())
	defer c.Close()

	if !c.Mirror().Annotations.Has(annotationId) {
		// deleting an absent annotation changes nothing
		Out.Printf("ok")
		return
	}
	await(c, echo, scene.TypeAnnotationDeleted, func() error {
		return c.DeleteAnnotation(annotationId)
	})
}

func snapshotOf(mirror client.Mirror) *scene.Snapshot {
	return &scene.Snapshot{
		Camera:      mirror.Camera,
		Object:      mirror.Object,
		Annotations: mirror.Annotations.List(),
		Chat:        mirror.Chat,
		Model:       mirror.Model,
	}
}
