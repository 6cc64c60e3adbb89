package luascript

import (
	"slices"

	"github.com/Shopify/go-lua"

	"github.com/voicetyped/dialoguekit/pkg/dialog"
)

// register installs the global "dialogue" table.
func (s *Script) register() {
	l := s.state
	l.NewTable()
	lua.SetFunctions(l, []lua.RegistryFunction{
		{Name: "say", Function: s.say},
		{Name: "choice", Function: s.choice},
		{Name: "finish", Function: s.finish},
		{Name: "get", Function: s.get},
		{Name: "set", Function: s.set},
		{Name: "has", Function: s.has},
		{Name: "inc", Function: s.inc},
		{Name: "remove", Function: s.remove},
		{Name: "roll", Function: s.roll},
		{Name: "find_speaker", Function: s.findSpeaker},
		{Name: "visited", Function: s.visited},
		{Name: "pause", Function: s.pause},
		{Name: "player", Function: s.player},
		{Name: "target", Function: s.target},
	}, 0)
	l.SetGlobal("dialogue")
}

func (s *Script) dialogue(l *lua.State) *dialog.Dialogue {
	if s.d == nil {
		lua.Errorf(l, "dialogue API used outside a conversation")
	}
	return s.d
}

// say shows a line. It accepts either (text [, next [, output]]) or a
// table with text, speaker, custom, duration, expression, effect,
// voice_over, next and output fields.
func (s *Script) say(l *lua.State) int {
	d := s.dialogue(l)
	line := dialog.Line{Speaker: dialog.SpeakerTarget, Duration: dialog.DurationAuto}
	var next dialog.Continuation

	if l.TypeOf(1) == lua.TypeTable {
		line.Text = fieldString(l, 1, "text", "")
		if v := fieldString(l, 1, "speaker", ""); v != "" {
			if err := line.Speaker.UnmarshalText([]byte(v)); err != nil {
				lua.Errorf(l, "%s", err.Error())
			}
		}
		line.Custom = dialog.Tag(fieldString(l, 1, "custom", ""))
		if line.Custom.IsValid() && fieldString(l, 1, "speaker", "") == "" {
			line.Speaker = dialog.SpeakerCustom
		}
		line.Duration = fieldNumber(l, 1, "duration", dialog.DurationAuto)
		if v := fieldString(l, 1, "expression", ""); v != "" {
			if err := line.Expression.UnmarshalText([]byte(v)); err != nil {
				lua.Errorf(l, "%s", err.Error())
			}
		}
		if v := fieldString(l, 1, "effect", ""); v != "" {
			if err := line.Effect.UnmarshalText([]byte(v)); err != nil {
				lua.Errorf(l, "%s", err.Error())
			}
		}
		line.VoiceOver = dialog.Tag(fieldString(l, 1, "voice_over", ""))
		next = dialog.Resume(fieldString(l, 1, "next", ""), fieldInt(l, 1, "output", 0))
	} else {
		line.Text = lua.CheckString(l, 1)
		next = dialog.Resume(lua.OptString(l, 2, ""), lua.OptInteger(l, 3, 0))
	}
	d.ShowText(line, next)
	return 0
}

// choice offers an option. It accepts (text, next [, output]) or a table
// with text, next, output, name, enabled, repeatable and asset fields.
// A missing next ends the conversation when chosen.
func (s *Script) choice(l *lua.State) int {
	d := s.dialogue(l)
	var (
		title string
		next  dialog.Continuation
		opts  []dialog.ChoiceOption
	)
	if l.TypeOf(1) == lua.TypeTable {
		title = fieldString(l, 1, "text", "")
		next = dialog.Resume(fieldString(l, 1, "next", ""), fieldInt(l, 1, "output", 0))
		opts = append(opts,
			dialog.Enabled(fieldBool(l, 1, "enabled", true)),
			dialog.WithAsset(dialog.AssetID(fieldString(l, 1, "asset", ""))),
		)
		if name := fieldString(l, 1, "name", ""); name != "" {
			opts = append(opts, dialog.Named(name))
		}
		if fieldBool(l, 1, "repeatable", false) {
			opts = append(opts, dialog.Repeatable())
		}
	} else {
		title = lua.CheckString(l, 1)
		next = dialog.Resume(lua.OptString(l, 2, ""), lua.OptInteger(l, 3, 0))
	}
	if title == "" {
		lua.Errorf(l, "choice needs text")
	}
	d.AddChoice(title, next, opts...)
	return 0
}

func (s *Script) finish(l *lua.State) int {
	s.dialogue(l).Deactivate()
	return 0
}

func (s *Script) scope(l *lua.State, index int) dialog.Tag {
	return s.d.NamedScope(lua.OptString(l, index, ""))
}

func checkTag(l *lua.State, index int) dialog.Tag {
	tag := dialog.Tag(lua.CheckString(l, index))
	if !tag.IsValid() {
		lua.ArgumentError(l, index, "empty tag")
	}
	return tag
}

// get(tag [, scope]) returns the stored value or 0.
func (s *Script) get(l *lua.State) int {
	d := s.dialogue(l)
	l.PushInteger(int(d.Context().Get(checkTag(l, 1), s.scope(l, 2))))
	return 1
}

// set(tag, value [, scope])
func (s *Script) set(l *lua.State) int {
	d := s.dialogue(l)
	tag := checkTag(l, 1)
	l.PushBoolean(d.Context().Set(tag, s.scope(l, 3), int32(lua.CheckInteger(l, 2))))
	return 1
}

// has(tag [, scope])
func (s *Script) has(l *lua.State) int {
	d := s.dialogue(l)
	l.PushBoolean(d.Context().Has(checkTag(l, 1), s.scope(l, 2)))
	return 1
}

// inc(tag [, delta [, scope]]) creates missing tags.
func (s *Script) inc(l *lua.State) int {
	d := s.dialogue(l)
	tag := checkTag(l, 1)
	l.PushBoolean(d.Context().Increment(tag, s.scope(l, 3), int32(lua.OptInteger(l, 2, 1)), true))
	return 1
}

// remove(tag [, scope])
func (s *Script) remove(l *lua.State) int {
	d := s.dialogue(l)
	l.PushBoolean(d.Context().Remove(checkTag(l, 1), s.scope(l, 2)))
	return 1
}

// roll(tag, min, max [, scope]) stores and returns the roll.
func (s *Script) roll(l *lua.State) int {
	d := s.dialogue(l)
	tag := checkTag(l, 1)
	lo := int32(lua.CheckInteger(l, 2))
	hi := int32(lua.CheckInteger(l, 3))
	l.PushInteger(int(d.Context().MakeRandomRoll(tag, s.scope(l, 4), lo, hi)))
	return 1
}

// find_speaker(tag, kind) binds the nearest actor of kind.
func (s *Script) findSpeaker(l *lua.State) int {
	d := s.dialogue(l)
	tag := checkTag(l, 1)
	l.PushBoolean(d.FindCustomSpeaker(tag, lua.CheckString(l, 2)))
	return 1
}

// visited(name) reports whether a choice with that name was taken.
func (s *Script) visited(l *lua.State) int {
	d := s.dialogue(l)
	l.PushBoolean(slices.Contains(d.Visited(), lua.CheckString(l, 1)))
	return 1
}

// pause([paused]) sets the pause state, toggling when called without
// arguments.
func (s *Script) pause(l *lua.State) int {
	d := s.dialogue(l)
	if l.IsNoneOrNil(1) {
		d.TogglePause()
	} else {
		d.SetPaused(l.ToBoolean(1))
	}
	l.PushBoolean(d.IsPaused())
	return 1
}

func (s *Script) player(l *lua.State) int {
	return pushActorID(l, s.dialogue(l).Player())
}

func (s *Script) target(l *lua.State) int {
	return pushActorID(l, s.dialogue(l).Target())
}

func pushActorID(l *lua.State, a dialog.Actor) int {
	if a == nil || !a.Valid() {
		l.PushNil()
	} else {
		l.PushString(a.ID())
	}
	return 1
}

func fieldString(l *lua.State, index int, key, def string) string {
	l.Field(index, key)
	defer l.Pop(1)
	if l.IsNoneOrNil(-1) {
		return def
	}
	v, ok := l.ToString(-1)
	if !ok {
		lua.Errorf(l, "field %s must be a string", key)
	}
	return v
}

func fieldNumber(l *lua.State, index int, key string, def float64) float64 {
	l.Field(index, key)
	defer l.Pop(1)
	if l.IsNoneOrNil(-1) {
		return def
	}
	v, ok := l.ToNumber(-1)
	if !ok {
		lua.Errorf(l, "field %s must be a number", key)
	}
	return v
}

func fieldInt(l *lua.State, index int, key string, def int) int {
	l.Field(index, key)
	defer l.Pop(1)
	if l.IsNoneOrNil(-1) {
		return def
	}
	v, ok := l.ToInteger(-1)
	if !ok {
		lua.Errorf(l, "field %s must be an integer", key)
	}
	return v
}

func fieldBool(l *lua.State, index int, key string, def bool) bool {
	l.Field(index, key)
	defer l.Pop(1)
	if l.IsNoneOrNil(-1) {
		return def
	}
	return l.ToBoolean(-1)
}
