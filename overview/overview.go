// Package overview keeps each guild's upcoming-birthdays message current.
// The message is edited in place; when it was deleted out from under us a
// new one is created and its ref persisted, so the listing never needs
// manual recreation.
package overview

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"jubilee/clock"
	"jubilee/dal"
	"jubilee/discord"
	"jubilee/models"
)

// pageSize bounds the rendered listing.
const pageSize = 20

// Reconciler rebuilds and applies overview messages. Reconciles for the
// same guild serialize on a per-guild lock so a slow edit cannot overwrite
// a fresher message ref.
type Reconciler struct {
	store  *dal.Store
	client discord.Client
	log    zerolog.Logger
	now    func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New wires a reconciler.
func New(store *dal.Store, client discord.Client, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		store:  store,
		client: client,
		log:    log.With().Str("component", "overview").Logger(),
		now:    time.Now,
		locks:  make(map[string]*sync.Mutex),
	}
}

func (r *Reconciler) guildLock(guildID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.locks[guildID]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[guildID] = lock
	}
	return lock
}

// Reconcile regenerates the guild's overview message from current data.
// Guilds without an overview channel are skipped.
func (r *Reconciler) Reconcile(ctx context.Context, guildID string) error {
	lock := r.guildLock(guildID)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	cfg, err := r.store.GetGuildConfig(guildID)
	if err != nil {
		return fmt.Errorf("load config for %v: %w", guildID, err)
	}
	if cfg == nil || cfg.OverviewChannelID == nil {
		return nil
	}

	content, err := r.render(cfg)
	if err != nil {
		return fmt.Errorf("render overview for %v: %w", guildID, err)
	}

	if cfg.OverviewMessageID != nil {
		err := r.client.EditMessage(*cfg.OverviewChannelID, *cfg.OverviewMessageID, content)
		if err == nil {
			return nil
		}
		if !discord.IsNotFound(err) {
			return fmt.Errorf("edit overview message for %v: %w", guildID, err)
		}
		r.log.Info().Str("guild", guildID).Msg("overview message lost, recreating")
	}

	messageID, err := r.client.SendMessage(*cfg.OverviewChannelID, content)
	if err != nil {
		return fmt.Errorf("create overview message for %v: %w", guildID, err)
	}
	if err := r.store.SetOverviewMessage(guildID, messageID); err != nil {
		return fmt.Errorf("persist overview message ref for %v: %w", guildID, err)
	}
	return nil
}

type entry struct {
	userID string
	next   clock.Date
}

func (r *Reconciler) render(cfg *models.GuildConfig) (string, error) {
	birthdays, err := r.store.ListBirthdays(cfg.GuildID)
	if err != nil {
		return "", err
	}
	if len(birthdays) == 0 {
		return "**Upcoming birthdays**\nNo birthdays registered yet. Use /birthday set!", nil
	}

	today := clock.LocalDate(r.now(), cfg.UTCOffset)
	entries := make([]entry, 0, len(birthdays))
	for _, birthday := range birthdays {
		entries = append(entries, entry{
			userID: birthday.UserID,
			next:   nextOccurrence(birthday, today),
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].next != entries[j].next {
			return entries[i].next.Before(entries[j].next)
		}
		return entries[i].userID < entries[j].userID
	})

	var b strings.Builder
	b.WriteString("**Upcoming birthdays**\n")
	shown := entries
	if len(shown) > pageSize {
		shown = shown[:pageSize]
	}
	for _, e := range shown {
		fmt.Fprintf(&b, "🎂 <@%s> — %s %s\n", e.userID, e.next.Month, humanize.Ordinal(e.next.Day))
	}
	if rest := len(entries) - len(shown); rest > 0 {
		fmt.Fprintf(&b, "… and %d more", rest)
	}
	return b.String(), nil
}

// nextOccurrence returns the date the birthday is next observed, today
// included. Feb 29 birthdays fall on March 1 in non-leap years.
func nextOccurrence(birthday models.Birthday, today clock.Date) clock.Date {
	occurrenceIn := func(year int) clock.Date {
		month, day := time.Month(birthday.Month), int(birthday.Day)
		if month == time.February && day == 29 && !clock.IsLeapYear(year) {
			month, day = time.March, 1
		}
		return clock.Date{Year: year, Month: month, Day: day}
	}

	occurrence := occurrenceIn(today.Year)
	if occurrence.Before(today) {
		occurrence = occurrenceIn(today.Year + 1)
	}
	return occurrence
}
