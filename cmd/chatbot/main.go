package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aihub/chatbot-go/internal/config"
	"github.com/aihub/chatbot-go/internal/di"
	apperrors "github.com/aihub/chatbot-go/internal/errors"
	"github.com/aihub/chatbot-go/internal/logger"
	"github.com/aihub/chatbot-go/internal/services"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const usage = `Usage: chatbot <command> [flags]

Commands:
  create-bot  -user <id> -name <name> [-desc <description>]
  bots        -user <id>
  delete-bot  -user <id> -bot <bot_id>
  ingest      -user <id> -bot <bot_id> -file <path>
  documents   -bot <bot_id>
  cat         -doc <document_id>
  stats       -bot <bot_id>
  ask         -user <id> -bot <bot_id> -q <question>
  history     -bot <bot_id> [-n <limit>]
`

func main() {
	// 本地开发时从.env加载环境变量
	_ = godotenv.Load()

	if err := logger.InitLogger(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if _, err := config.Load(); err != nil {
		logger.Fatal("加载配置失败", zap.Error(err))
	}
	if _, err := di.InitContainer(); err != nil {
		logger.Fatal("初始化依赖注入容器失败", zap.Error(err))
	}

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "create-bot":
		err = runCreateBot(ctx, os.Args[2:])
	case "bots":
		err = runListBots(ctx, os.Args[2:])
	case "delete-bot":
		err = runDeleteBot(ctx, os.Args[2:])
	case "ingest":
		err = runIngest(ctx, os.Args[2:])
	case "documents":
		err = runListDocuments(ctx, os.Args[2:])
	case "cat":
		err = runCatDocument(ctx, os.Args[2:])
	case "stats":
		err = runStats(ctx, os.Args[2:])
	case "ask":
		err = runAsk(ctx, os.Args[2:])
	case "history":
		err = runHistory(ctx, os.Args[2:])
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		appErr := apperrors.GetAppError(err)
		logger.Error("命令执行失败",
			zap.String("command", os.Args[1]),
			zap.String("code", string(appErr.Code)),
			zap.Error(err))
		os.Exit(1)
	}
}

func runCreateBot(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create-bot", flag.ExitOnError)
	userID := fs.Uint("user", 0, "owner user id")
	name := fs.String("name", "", "bot name")
	desc := fs.String("desc", "", "bot description")
	_ = fs.Parse(args)

	return di.Invoke(func(botService *services.BotService) error {
		bot, err := botService.CreateBot(ctx, *userID, *name, *desc)
		if err != nil {
			return err
		}
		fmt.Printf("created bot %s (%s)\n", bot.BotID, bot.Name)
		return nil
	})
}

func runListBots(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("bots", flag.ExitOnError)
	userID := fs.Uint("user", 0, "owner user id")
	_ = fs.Parse(args)

	return di.Invoke(func(botService *services.BotService) error {
		bots, err := botService.ListBots(ctx, *userID)
		if err != nil {
			return err
		}
		for _, bot := range bots {
			fmt.Printf("%s  %-24s  %s\n", bot.BotID, bot.Name, bot.Status)
		}
		return nil
	})
}

func runDeleteBot(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("delete-bot", flag.ExitOnError)
	userID := fs.Uint("user", 0, "owner user id")
	botID := fs.String("bot", "", "bot id")
	_ = fs.Parse(args)

	return di.Invoke(func(botService *services.BotService) error {
		if err := botService.DeleteBot(ctx, *botID, *userID); err != nil {
			return err
		}
		fmt.Printf("deleted bot %s\n", *botID)
		return nil
	})
}

func runIngest(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	userID := fs.Uint("user", 0, "owner user id")
	botID := fs.String("bot", "", "bot id")
	file := fs.String("file", "", "path to a text file")
	_ = fs.Parse(args)

	data, err := os.ReadFile(*file)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", *file, err)
	}

	return di.Invoke(func(botService *services.BotService, ingestService *services.IngestService) error {
		if _, err := botService.VerifyBotAccess(ctx, *botID, *userID); err != nil {
			return err
		}

		result, err := ingestService.IngestDocument(ctx, *botID, *userID, filepath.Base(*file), string(data))
		if err != nil {
			var batchErr *apperrors.BatchInsertError
			if result != nil && errors.As(err, &batchErr) {
				fmt.Printf("ingested %s: %d chunks written, %d failed\n", result.DocumentID, result.ChunkCount, result.FailedCount)
			}
			return err
		}
		fmt.Printf("ingested %s: %d chunks\n", result.DocumentID, result.ChunkCount)
		return nil
	})
}

func runListDocuments(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("documents", flag.ExitOnError)
	botID := fs.String("bot", "", "bot id")
	_ = fs.Parse(args)

	return di.Invoke(func(ingestService *services.IngestService) error {
		docs, err := ingestService.ListBotDocuments(ctx, *botID)
		if err != nil {
			return err
		}
		for _, doc := range docs {
			fmt.Printf("%-32s  %4d chunks  %s\n", doc.Filename, doc.ChunkCount, doc.Preview)
		}
		return nil
	})
}

func runCatDocument(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("cat", flag.ExitOnError)
	docID := fs.String("doc", "", "document id")
	_ = fs.Parse(args)

	return di.Invoke(func(ingestService *services.IngestService) error {
		text, err := ingestService.FetchDocumentText(ctx, *docID)
		if err != nil {
			return err
		}
		fmt.Println(text)
		return nil
	})
}

func runHistory(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	botID := fs.String("bot", "", "bot id")
	limit := fs.Int("n", 50, "max messages")
	_ = fs.Parse(args)

	return di.Invoke(func(chatService *services.ChatService) error {
		turns, err := chatService.History(ctx, *botID, *limit)
		if err != nil {
			return err
		}
		for _, turn := range turns {
			fmt.Printf("[%s] %s\n", turn.Role, turn.Content)
		}
		return nil
	})
}

func runStats(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	botID := fs.String("bot", "", "bot id")
	_ = fs.Parse(args)

	return di.Invoke(func(ingestService *services.IngestService) error {
		count, err := ingestService.CollectionStats(ctx, *botID)
		if err != nil {
			return err
		}
		fmt.Printf("bot %s: %d vectors\n", *botID, count)
		return nil
	})
}

func runAsk(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	userID := fs.Uint("user", 0, "user id")
	botID := fs.String("bot", "", "bot id")
	question := fs.String("q", "", "question")
	_ = fs.Parse(args)

	return di.Invoke(func(botService *services.BotService, chatService *services.ChatService) error {
		bot, err := botService.VerifyBotAccess(ctx, *botID, *userID)
		if err != nil {
			return err
		}

		answer, err := chatService.Answer(ctx, bot, *userID, *question)
		if err != nil {
			return err
		}
		fmt.Println(answer.Answer)
		return nil
	})
}
